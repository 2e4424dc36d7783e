package performance

import "fmt"

// NAVPoint is the valuation of a scope at the end of a day, in the
// reporting currency.
type NAVPoint struct {
	On        Date    `json:"on"`
	Cash      float64 `json:"cash"`
	Positions float64 `json:"positions"`
	Total     float64 `json:"total"`
	// Complete is false when at least one open position had no price at all.
	Complete bool `json:"complete"`
}

// valuer prices positions for the NAV engine. Every data gap is counted,
// and warned once per symbol or currency of diag.
type valuer struct {
	market     *MarketData
	fallbackFX float64
	diag       *Diagnostics
}

func newValuer(market *MarketData, fallbackFX float64, diag *Diagnostics) *valuer {
	return &valuer{market: market, fallbackFX: fallbackFX, diag: diag}
}

func (v *valuer) once(code WarningCode, symbol string) bool { return !v.diag.reported(code, symbol) }

// rate returns the rate of currency on a day, or the fallback rate.
func (v *valuer) rate(currency string, on Date) float64 {
	if r, lookAhead, ok := v.market.RateAt(currency, on); ok {
		if lookAhead {
			v.diag.LookAheadFX++
			if v.once(WarnLookAheadFX, currency) {
				v.diag.warnf(WarnLookAheadFX, on, currency, "valued with a later %s rate %g", currency, r)
			}
		}
		return r
	}
	v.diag.MissingFX++
	if v.once(WarnMissingFX, currency) {
		v.diag.warnf(WarnMissingFX, on, currency, "no %s rate, using fallback %g", currency, v.fallbackFX)
	}
	return v.fallbackFX
}

// price returns the close of symbol in currency for a valuation on a day.
func (v *valuer) price(symbol, currency string, on Date) (float64, bool) {
	p, lookAhead, ok := v.market.PriceAt(symbol, currency, on)
	if !ok {
		v.diag.MissingPrices++
		if v.once(WarnMissingPrice, symbol) {
			v.diag.warnf(WarnMissingPrice, on, symbol, "no price at all")
		}
		return 0, false
	}
	if lookAhead {
		v.diag.LookAheadPrices++
		if v.once(WarnLookAheadPrice, symbol) {
			v.diag.warnf(WarnLookAheadPrice, on, symbol, "valued with a later close %g", p)
		}
	}
	return p, true
}

// position returns the contribution of an open key to the NAV on a day.
// Derivatives contribute their mark-to-market since their notional never
// moved cash.
func (v *valuer) position(tl *Timeline, key PositionKey, on Date) (value float64, ok bool) {
	q, cost := tl.ValuedAsOf(key, on)
	if q.IsZero() {
		return 0, true
	}
	p, ok := v.price(key.Symbol, key.Currency, on)
	if !ok {
		return 0, false
	}
	sign := float64(key.Direction.Sign())
	value = q.AsFloat() * p
	if tl.Types[key].IsDerivative() {
		value -= cost.AsFloat()
	}
	return sign * value * v.rate(key.Currency, on), true
}

// ComputeNAV values the scope at each date: NAV = cash + Σ signed quantity
// × price × fx. Keys for which exclude returns true are left out of the
// positions; exclude may be nil. Data gaps are counted in diag.
func ComputeNAV(dates []Date, tl *Timeline, cash *CashReplay, market *MarketData, fallbackFX float64, diag *Diagnostics, exclude func(PositionKey) bool) []NAVPoint {
	v := newValuer(market, fallbackFX, diag)
	points := make([]NAVPoint, 0, len(dates))
	for _, on := range dates {
		points = append(points, v.point(tl, cash, on, exclude))
	}
	return points
}

// point values one day. Keys in exclude are left out of the positions.
func (v *valuer) point(tl *Timeline, cash *CashReplay, on Date, exclude func(PositionKey) bool) NAVPoint {
	pt := NAVPoint{On: on, Cash: cash.BalanceAsOf(on), Complete: true}
	for _, key := range tl.Keys {
		if exclude != nil && exclude(key) {
			continue
		}
		value, ok := v.position(tl, key, on)
		if !ok {
			pt.Complete = false
			continue
		}
		pt.Positions += value
	}
	pt.Total = pt.Cash + pt.Positions
	return pt
}

// unrealized returns the unrealized P&L of every open key on a day.
func (v *valuer) unrealized(tl *Timeline, on Date) float64 {
	total := 0.0
	for _, key := range tl.Keys {
		q, cost := tl.ValuedAsOf(key, on)
		if q.IsZero() {
			continue
		}
		p, _, ok := v.market.PriceAt(key.Symbol, key.Currency, on)
		if !ok {
			continue
		}
		gain := q.AsFloat()*p - cost.AsFloat()
		total += float64(key.Direction.Sign()) * gain * v.rate(key.Currency, on)
	}
	return total
}

func (p NAVPoint) String() string {
	s := fmt.Sprintf("%s %.2f (cash %.2f)", p.On, p.Total, p.Cash)
	if !p.Complete {
		s += " incomplete"
	}
	return s
}
