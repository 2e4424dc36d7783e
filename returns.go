package performance

import (
	"maps"
	"slices"
)

// DefaultEpsilon is the denominator below which a return is floored to 0.
const DefaultEpsilon = 1e-9

// FlowPoint is the net external flow of one day.
type FlowPoint struct {
	On     Date    `json:"on"`
	Amount float64 `json:"amount"`
}

// In returns the inflow part of the net flow.
func (f FlowPoint) In() float64 { return max(f.Amount, 0) }

// Out returns the absolute outflow part of the net flow.
func (f FlowPoint) Out() float64 { return max(-f.Amount, 0) }

// Series is the capital series returns are computed on: valuations,
// external flows inside the window and the capital already present before
// it. It is the contract between an analysis and the aggregator.
type Series struct {
	Window Range       `json:"window"`
	Base   float64     `json:"base"` // value of the scope the day before the window
	Points []NAVPoint  `json:"points"`
	Flows  []FlowPoint `json:"flows"` // sorted, at most one per day
}

// Complete reports whether every valuation of the series was complete.
func (s Series) Complete() bool {
	return !slices.ContainsFunc(s.Points, func(p NAVPoint) bool { return !p.Complete })
}

// netFlows sums flows per day.
func netFlows(flows []ExternalFlow) []FlowPoint {
	byDay := make(map[Date]float64)
	for _, f := range flows {
		byDay[f.On] += f.Amount
	}
	out := make([]FlowPoint, 0, len(byDay))
	for _, on := range slices.SortedFunc(maps.Keys(byDay), Date.Compare) {
		out = append(out, FlowPoint{On: on, Amount: byDay[on]})
	}
	return out
}

// flowsIn returns the flows dated within r.
func (s Series) flowsIn(r Range) []FlowPoint {
	var out []FlowPoint
	for _, f := range s.Flows {
		if r.Contains(f.On) {
			out = append(out, f)
		}
	}
	return out
}

// pointAt returns the valuation on day.
func (s Series) pointAt(on Date) (NAVPoint, bool) {
	i, found := slices.BinarySearchFunc(s.Points, on, func(p NAVPoint, d Date) int { return p.On.Compare(d) })
	if !found {
		return NAVPoint{}, false
	}
	return s.Points[i], true
}

// ModifiedDietz returns one return per calendar month of the window:
//
//	(V_end − V_start − F) / (V_start + Σ w_i F_i), w_i = (CD − D_i) / CD
//
// where CD is the number of days of the month (clipped to the window) and
// D_i the days elapsed before flow i. The first V_start is the capital base
// of the series. A month whose end valuation is incomplete is skipped and
// its flows are carried into the next one.
func ModifiedDietz(s Series, eps float64, diag *Diagnostics) []PeriodReturn {
	var out []PeriodReturn
	start := s.Base
	var carried []FlowPoint
	var carriedFrom Date // start of the skipped months, zero when none

	for period := range s.Window.Periods(Monthly) {
		flows := append(carried, s.flowsIn(period)...)
		from := period.From
		if !carriedFrom.IsZero() {
			from = carriedFrom
		}

		end, ok := s.pointAt(period.To)
		if !ok || !end.Complete {
			diag.SkippedDays++
			diag.warnf(WarnSkippedDay, period.To, "", "incomplete valuation, %s not measured", period.Identifier())
			carried, carriedFrom = flows, from
			continue
		}
		carried, carriedFrom = nil, Date{}

		cd := float64(from.DaysUntil(period.To) + 1)
		net, weighted := 0.0, 0.0
		for _, f := range flows {
			w := (cd - float64(from.DaysUntil(f.On))) / cd
			net += f.Amount
			weighted += w * f.Amount
		}

		r := 0.0
		den := start + weighted
		if den <= eps {
			diag.DenominatorFloors++
			diag.warnf(WarnDenominatorFloor, period.To, "", "no capital at work in %s", period.Identifier())
		} else {
			r = (end.Total - start - net) / den
		}
		out = append(out, PeriodReturn{Period: Range{From: from, To: period.To}, Return: r})
		start = end.Total
	}
	chain(out)
	return out
}

// DailyTWR computes the GIPS beginning-of-day return of every valued day
//
//	r_d = (V_d + |out_d|) / (V_{d−1} + in_d) − 1
//
// and compounds them within each calendar month. The value before the first
// day is the capital base of the series, so flows of the first day count as
// initial capital. Days with an incomplete valuation are skipped and their
// flows roll into the next valued day.
func DailyTWR(s Series, eps float64, diag *Diagnostics) []PeriodReturn {
	flows := make(map[Date]FlowPoint, len(s.Flows))
	for _, f := range s.Flows {
		flows[f.On] = f
	}

	var out []PeriodReturn
	prev := s.Base
	var in, outflow float64
	for period := range s.Window.Periods(Monthly) {
		growth, floored := 1.0, 0
		for day := range period.Days() {
			f := flows[day]
			in += f.In()
			outflow += f.Out()

			pt, ok := s.pointAt(day)
			if !ok || !pt.Complete {
				diag.SkippedDays++
				diag.warnf(WarnSkippedDay, day, "", "incomplete valuation")
				continue
			}

			den := prev + in
			if den <= eps {
				floored++
			} else {
				growth *= (pt.Total + outflow) / den
			}
			prev, in, outflow = pt.Total, 0, 0
		}
		if floored > 0 {
			diag.DenominatorFloors += floored
			diag.warnf(WarnDenominatorFloor, period.To, "", "%d day(s) without capital at work in %s", floored, period.Identifier())
		}
		out = append(out, PeriodReturn{Period: period, Return: growth - 1})
	}
	chain(out)
	return out
}

// chain sets the growth of one unit invested at the start of the first
// period, and returns the cumulative return.
func chain(periods []PeriodReturn) float64 {
	growth := 1.0
	for i := range periods {
		growth *= 1 + periods[i].Return
		periods[i].Growth = growth
	}
	return growth - 1
}

// Cumulative returns the chain-linked return of periods.
func Cumulative(periods []PeriodReturn) float64 {
	if len(periods) == 0 {
		return 0
	}
	return periods[len(periods)-1].Growth - 1
}

// Returns runs the return engine of mode on s.
func Returns(mode Mode, s Series, eps float64, diag *Diagnostics) []PeriodReturn {
	if mode == ModeTWR {
		return DailyTWR(s, eps, diag)
	}
	return ModifiedDietz(s, eps, diag)
}
