// Package renderer formats analysis results as markdown.
package renderer

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/etnz/performance"
	md "github.com/nao1215/markdown"
)

// Options selects the optional sections of a report.
type Options struct {
	SkipTrades bool // Do not render closed trades and open lots.
	SkipFlows  bool // Do not render external flows.
}

// PerformanceMarkdown renders an analysis result.
func PerformanceMarkdown(res *performance.PerformanceResult, opts Options) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	cur := res.ReportingCurrency

	doc.H1(fmt.Sprintf("Performance of %s from %s to %s", res.Scope, res.Window.From, res.Window.To))
	doc.PlainText(fmt.Sprintf("Method: %s, reporting currency: %s.", methodName(res.Mode), cur))
	if !res.Reliable {
		doc.PlainText("")
		doc.PlainText(md.Bold("Estimated:") + " the result relies on synthetic, suppressed or missing data, see Diagnostics.")
	}

	doc.H2("Summary")
	doc.Table(md.TableSet{
		Header:    []string{"Metric", "Value"},
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Rows: [][]string{
			{"Cumulative Return", md.Bold(percent(res.CumulativeReturn))},
			{"Realized P&L", money(res.RealizedPnL, cur)},
			{"Unrealized P&L", money(res.UnrealizedPnL, cur)},
			{"Ending Value", money(endingValue(res), cur)},
		},
	})

	if len(res.Periods) > 0 {
		doc.H2("Returns")
		table := md.TableSet{
			Header:    []string{"Period", "Return", "Growth of 1"},
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight},
		}
		for _, p := range res.Periods {
			table.Rows = append(table.Rows, []string{
				p.Period.Identifier(),
				percent(p.Return),
				strconv.FormatFloat(p.Growth, 'f', 4, 64),
			})
		}
		doc.Table(table)
	}

	if len(res.Accounts) > 1 {
		doc.H2("Accounts")
		doc.BulletList(res.Accounts...)
	}

	if !opts.SkipTrades {
		renderTrades(doc, res)
	}
	if !opts.SkipFlows && len(res.Flows) > 0 {
		doc.H2("External Flows")
		table := md.TableSet{
			Header:    []string{"Date", "Kind", "Symbol", "Amount"},
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignRight},
		}
		for _, f := range res.Flows {
			table.Rows = append(table.Rows, []string{f.On.String(), string(f.Kind), f.Symbol, money(f.Amount, cur)})
		}
		doc.Table(table)
	}

	renderDiagnostics(doc, res.Diagnostics)
	return doc.String()
}

func renderTrades(doc *md.Markdown, res *performance.PerformanceResult) {
	if len(res.Closed) > 0 {
		doc.H2("Closed Trades")
		table := md.TableSet{
			Header:    []string{"Position", "Opened", "Closed", "Quantity", "Entry", "Exit", "Realized"},
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
		}
		for _, c := range res.Closed {
			table.Rows = append(table.Rows, []string{
				c.Key.String(), c.Opened.String(), c.Closed.String(), c.Quantity.String(),
				c.EntryPrice.String(), c.ExitPrice.String(), c.RealizedPnL.SignedString(),
			})
		}
		doc.Table(table)
	}

	if len(res.Open) > 0 {
		doc.H2("Open Lots")
		table := md.TableSet{
			Header:    []string{"Position", "Opened", "Remaining", "Price"},
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight},
		}
		for _, l := range res.Open {
			table.Rows = append(table.Rows, []string{l.Key.String(), l.Opened.String(), l.Remaining.String(), l.Price.String()})
		}
		doc.Table(table)
	}

	if len(res.Incomplete) > 0 {
		doc.H2("Incomplete Trades")
		table := md.TableSet{
			Header:    []string{"Position", "Date", "Quantity", "Unmatched"},
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight},
		}
		for _, t := range res.Incomplete {
			table.Rows = append(table.Rows, []string{t.Key.String(), t.On.String(), t.Quantity.String(), t.Unmatched.String()})
		}
		doc.Table(table)
	}
}

func renderDiagnostics(doc *md.Markdown, d performance.Diagnostics) {
	doc.H2("Diagnostics")
	counters := []struct {
		name  string
		value int
	}{
		{"Synthetic positions", d.SyntheticPositions},
		{"Seeded flows", d.SeededFlows},
		{"Unmatched trades", d.UnmatchedTrades},
		{"Missing FX", d.MissingFX},
		{"Look-ahead FX", d.LookAheadFX},
		{"Look-ahead prices", d.LookAheadPrices},
		{"Missing prices", d.MissingPrices},
		{"Skipped days", d.SkippedDays},
		{"Denominator floors", d.DenominatorFloors},
		{"Excluded accounts", d.ExcludedAccounts},
	}
	table := md.TableSet{
		Header:    []string{"Counter", "Value"},
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
	}
	for _, c := range counters {
		if c.value != 0 {
			table.Rows = append(table.Rows, []string{c.name, strconv.Itoa(c.value)})
		}
	}
	if d.SuppressedNotional != 0 {
		table.Rows = append(table.Rows, []string{"Suppressed notional", strconv.FormatFloat(d.SuppressedNotional, 'f', 2, 64)})
	}
	if len(table.Rows) == 0 && len(d.Warnings) == 0 {
		doc.PlainText("No issue.")
		return
	}
	if len(table.Rows) > 0 {
		doc.Table(table)
	}
	if len(d.Warnings) > 0 {
		doc.H3("Warnings")
		items := make([]string, len(d.Warnings))
		for i, w := range d.Warnings {
			items[i] = w.String()
		}
		doc.BulletList(items...)
	}
}

func methodName(m performance.Mode) string {
	if m == performance.ModeTWR {
		return "daily time-weighted return"
	}
	return "monthly Modified Dietz"
}

func endingValue(res *performance.PerformanceResult) float64 {
	if n := len(res.Series.Points); n > 0 {
		return res.Series.Points[n-1].Total
	}
	return 0
}

func percent(ratio float64) string { return performance.AsPercent(ratio).SignedString() }

func money(v float64, cur string) string { return performance.M(v, cur).SignedString() }
