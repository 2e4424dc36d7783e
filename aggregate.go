package performance

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// AccountScope is the scope name of one account inside an aggregation.
func AccountScope(id string) string {
	if id == "" {
		return "account:(none)"
	}
	return "account:" + id
}

// Aggregate computes the combined performance of every account found in
// the feed.
//
// A single account is analyzed plainly. Otherwise each account is analyzed
// on the common window, accounts that fail or whose series is incomplete
// are excluded, and the return engine is rerun on the sum of the remaining
// capital series. When no account survives, the whole feed is analyzed
// ungrouped.
func Aggregate(scope string, feed Feed, market *MarketData, opts Options) (*PerformanceResult, error) {
	accounts := feed.Accounts()
	if len(accounts) <= 1 {
		return Analyze(scope, feed, market, opts)
	}
	opts = opts.withDefaults()
	log := opts.Logger.With(zap.String("scope", scope))

	window, err := feed.Window(opts)
	if err != nil {
		return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
	}
	// every account is measured on the same window so that series align
	perAccount := opts
	perAccount.Inception, perAccount.End = window.From, window.To

	var (
		included []*PerformanceResult
		ids      []string
		excluded []Warning
	)
	for _, id := range accounts {
		res, err := Analyze(AccountScope(id), feed.ForAccount(id), market, perAccount)
		var reason string
		switch {
		case err != nil:
			reason = err.Error()
		case !res.Series.Complete():
			reason = "incomplete valuation series"
		}
		if reason != "" {
			log.Warn("account excluded", zap.String("account", id), zap.String("reason", reason))
			excluded = append(excluded, Warning{Code: WarnAccountExcluded, Account: id, Message: reason})
			continue
		}
		included = append(included, res)
		ids = append(ids, id)
	}

	if len(included) == 0 {
		log.Warn("no account could be analyzed, falling back to an ungrouped analysis", zap.Int("accounts", len(accounts)))
		res, err := Analyze(scope, feed, market, opts)
		if err != nil {
			var se *ScopeError
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, fmt.Errorf("ungrouped analysis: %w", err)
		}
		res.Diagnostics.warn(Warning{
			Code:    WarnAggregationFallback,
			Message: fmt.Sprintf("all %d accounts failed, analyzed ungrouped", len(accounts)),
		})
		res.Reliable = res.Diagnostics.Reliable()
		return res, nil
	}

	res := &PerformanceResult{
		Scope:             scope,
		ReportingCurrency: opts.ReportingCurrency,
		Mode:              opts.Mode,
		Window:            window,
		Accounts:          ids,
	}
	series := make([]Series, 0, len(included))
	for _, r := range included {
		series = append(series, r.Series)
		res.RealizedPnL += r.RealizedPnL
		res.UnrealizedPnL += r.UnrealizedPnL
		res.Closed = append(res.Closed, r.Closed...)
		res.Open = append(res.Open, r.Open...)
		res.Incomplete = append(res.Incomplete, r.Incomplete...)
		res.Synthetic = append(res.Synthetic, r.Synthetic...)
		res.Flows = append(res.Flows, r.Flows...)
		res.Diagnostics.merge(tagAccount(r.Diagnostics, r.Scope))
	}
	slices.SortStableFunc(res.Flows, func(a, b ExternalFlow) int { return a.On.Compare(b.On) })
	res.Diagnostics.ExcludedAccounts = len(excluded)
	for _, w := range excluded {
		res.Diagnostics.warn(w)
	}

	res.Series = SumSeries(window, series...)
	// the return engine reruns on the combined capital series; the per
	// account return warnings above stay informative.
	res.Periods = Returns(opts.Mode, res.Series, opts.Epsilon, &res.Diagnostics)
	res.CumulativeReturn = Cumulative(res.Periods)
	res.Reliable = res.Diagnostics.Reliable()
	log.Debug("aggregated", zap.Strings("accounts", ids), zap.Int("excluded", len(excluded)))
	return res, nil
}

// tagAccount sets the account of warnings that have none.
func tagAccount(d Diagnostics, scope string) Diagnostics {
	d.Warnings = slices.Clone(d.Warnings)
	for i := range d.Warnings {
		if d.Warnings[i].Account == "" {
			d.Warnings[i].Account = scope
		}
	}
	return d
}

// SumSeries adds capital series on the union of their valuation dates. A
// series without a point on a date contributes its latest earlier value,
// or its base before its first point. Flows are summed per day.
func SumSeries(window Range, series ...Series) Series {
	out := Series{Window: window}
	dates := make(map[Date]struct{})
	var flows []ExternalFlow
	for _, s := range series {
		out.Base += s.Base
		for _, p := range s.Points {
			dates[p.On] = struct{}{}
		}
		for _, f := range s.Flows {
			flows = append(flows, ExternalFlow{On: f.On, Amount: f.Amount})
		}
	}
	out.Flows = netFlows(flows)

	cursor := make([]int, len(series))
	last := make([]NAVPoint, len(series))
	for i, s := range series {
		last[i] = NAVPoint{Cash: s.Base, Total: s.Base, Complete: true}
	}
	for _, on := range slices.SortedFunc(maps.Keys(dates), Date.Compare) {
		sum := NAVPoint{On: on, Complete: true}
		for i, s := range series {
			for cursor[i] < len(s.Points) && !s.Points[cursor[i]].On.After(on) {
				last[i] = s.Points[cursor[i]]
				cursor[i]++
			}
			sum.Cash += last[i].Cash
			sum.Positions += last[i].Positions
			sum.Total += last[i].Total
			sum.Complete = sum.Complete && last[i].Complete
		}
		out.Points = append(out.Points, sum)
	}
	return out
}
