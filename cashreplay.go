package performance

import (
	"fmt"
	"maps"
	"slices"
)

// FlowKind tells where an external flow comes from.
type FlowKind string

const (
	FlowTransfer FlowKind = "transfer" // provider authoritative deposit or withdrawal
	FlowInferred FlowKind = "inferred" // residual inflow covering a cash shortfall
	FlowSeed     FlowKind = "seed"     // in-kind contribution of a synthetic holding at cost
)

// ExternalFlow is capital entering (positive) or leaving (negative) the
// scope, in the reporting currency.
type ExternalFlow struct {
	On     Date     `json:"on"`
	Amount float64  `json:"amount"`
	Kind   FlowKind `json:"kind"`
	Symbol string   `json:"symbol,omitempty"`
	// Currency is the instrument currency of a seeded holding.
	Currency string `json:"currency,omitempty"`
}

// CashReplay is the reconstructed implied cash balance of a scope.
type CashReplay struct {
	Balance History[float64] // end of day, reporting currency
	Flows   []ExternalFlow

	// Authoritative is true when the scope carries transfer records, in
	// which case no flow is inferred and the balance may go negative.
	Authoritative bool
	Diagnostics   Diagnostics
}

// ReplayCash replays the cash impact of every transaction in chronological
// order into a single running balance in the reporting currency of market.
//
// Exits carrying an unmatched quantity only apply the matched share of
// their impact. Fully synthetic long holdings with a known cost basis are
// seeded as in-kind flows at cost. Derivatives only move cash through fees
// and the realized P&L of their closed trades.
func ReplayCash(match *MatchResult, tl *Timeline, market *MarketData, fallbackFX float64) *CashReplay {
	c := &CashReplay{}
	ahead := make(map[string]bool)
	rate := func(currency string, on Date, symbol string) float64 {
		if r, lookAhead, ok := market.RateAt(currency, on); ok {
			if lookAhead {
				c.Diagnostics.LookAheadFX++
				if !ahead[currency] {
					ahead[currency] = true
					c.Diagnostics.warnf(WarnLookAheadFX, on, symbol, "converted with a later %s rate %g", currency, r)
				}
			}
			return r
		}
		c.Diagnostics.MissingFX++
		c.Diagnostics.warnf(WarnMissingFX, on, symbol, "no %s rate, using fallback %g", currency, fallbackFX)
		return fallbackFX
	}

	deltas := make(map[Date]float64)
	for i, tx := range match.sorted {
		switch tx.Type {
		case Transfer:
			c.Authoritative = true
			amount := tx.Amount.AsFloat() * rate(tx.Currency, tx.When, tx.Symbol)
			deltas[tx.When] += amount
			c.Flows = append(c.Flows, ExternalFlow{On: tx.When, Amount: amount, Kind: FlowTransfer})

		case Dividend:
			amount := tx.Amount
			if amount.IsZero() {
				amount = tx.Notional()
			}
			deltas[tx.When] += amount.AsFloat() * rate(tx.Currency, tx.When, tx.Symbol)

		case Fee:
			amount := tx.Amount.Abs()
			if amount.IsZero() {
				amount = tx.Fee.Abs()
			}
			deltas[tx.When] -= amount.AsFloat() * rate(tx.Currency, tx.When, tx.Symbol)

		case Buy, Sell, Short, Cover:
			deltas[tx.When] += c.tradeImpact(tx, match.unmatchedAt(i), rate(tx.Currency, tx.When, tx.Symbol))
		}
	}

	for _, t := range match.Closed {
		if t.InstrumentType.IsDerivative() {
			deltas[t.Closed] += t.RealizedPnL.AsFloat() * rate(t.Key.Currency, t.Closed, t.Key.Symbol)
		}
	}

	c.seed(tl, rate)

	balance := 0.0
	for _, day := range slices.SortedFunc(maps.Keys(deltas), Date.Compare) {
		balance += deltas[day]
		if !c.Authoritative && balance < -cashTolerance {
			c.Flows = append(c.Flows, ExternalFlow{On: day, Amount: -balance, Kind: FlowInferred})
			balance = 0
		}
		c.Balance.Append(day, balance)
	}
	slices.SortStableFunc(c.Flows, func(a, b ExternalFlow) int { return a.On.Compare(b.On) })
	return c
}

// cashTolerance absorbs float noise when checking for a shortfall.
const cashTolerance = 1e-9

// tradeImpact returns the signed cash impact of a trade in the reporting
// currency, after suppression of its unmatched quantity u.
func (c *CashReplay) tradeImpact(tx Transaction, u Quantity, fx float64) float64 {
	fee := tx.Fee.Abs()
	if tx.InstrumentType.IsDerivative() {
		return -fee.AsFloat() * fx
	}
	notional := tx.Notional()
	if !u.IsZero() {
		matched := tx.Quantity.Sub(u)
		c.Diagnostics.SuppressedNotional += tx.Price.Mul(u).AsFloat() * fx
		notional = tx.Price.Mul(matched)
		fee = fee.Mul(matched).Div(tx.Quantity)
	}
	switch tx.Type {
	case Buy, Cover:
		return -notional.Add(fee).AsFloat() * fx
	default:
		return notional.Sub(fee).AsFloat() * fx
	}
}

// seed books synthetic capital for fully synthetic holdings.
func (c *CashReplay) seed(tl *Timeline, rate func(string, Date, string) float64) {
	if tl == nil {
		return
	}
	for _, s := range tl.Synthetic {
		if !tl.IsFullySynthetic(s.Key) || s.Held.IsZero() {
			continue
		}
		if s.Key.Direction == ShortSide {
			c.Diagnostics.warnf(WarnShortSeedUnsupported, s.On, s.Key.Symbol,
				"short synthetic position of %s is not seeded as capital", s.Quantity)
			continue
		}
		if s.InstrumentType.IsDerivative() || s.CostBasis.IsZero() {
			continue
		}
		amount := s.CostBasis.AsFloat() * rate(s.Key.Currency, s.On, s.Key.Symbol)
		c.Flows = append(c.Flows, ExternalFlow{On: s.On, Amount: amount, Kind: FlowSeed, Symbol: s.Key.Symbol, Currency: s.Key.Currency})
		c.Diagnostics.SeededFlows++
		c.Diagnostics.warn(Warning{
			Code:    WarnSyntheticSeed,
			On:      s.On,
			Symbol:  s.Key.Symbol,
			Message: fmt.Sprintf("%s held without opening, seeded at cost %s", s.Quantity, s.CostBasis),
		})
	}
}

// BalanceAsOf returns the end of day balance on or before on, 0 before any
// cash event.
func (c *CashReplay) BalanceAsOf(on Date) float64 {
	v, _ := c.Balance.ValueAsOf(on)
	return v
}

// IsSeeded reports whether the synthetic opening of key was booked as a seed.
func (c *CashReplay) IsSeeded(key PositionKey) bool {
	return slices.ContainsFunc(c.Flows, func(f ExternalFlow) bool {
		return f.Kind == FlowSeed && f.Symbol == key.Symbol && f.Currency == key.Currency && key.Direction == Long
	})
}
