package performance

import (
	"fmt"
	"maps"
	"slices"
)

// SyntheticEntry is an injected opening for quantity that was held or sold
// without any opening transaction in the available history.
type SyntheticEntry struct {
	Key            PositionKey
	On             Date
	Quantity       Quantity
	PriceHint      Money // per unit, in the key currency
	CostBasis      Money // broker reported total cost; zero when unknown
	InstrumentType InstrumentType

	Held           Quantity // part of Quantity still held in the snapshot
	Unmatched      Quantity // part of Quantity consumed by incomplete exits
	FullySynthetic bool     // the key has no real opening transaction at all
}

// PositionEvent is a change of the absolute position size of a key.
type PositionEvent struct {
	On        Date
	Delta     Quantity // positive when the position grows
	Cost      Money    // change of the open entry cost, in the key currency
	Synthetic bool
	// Unbacked is the part of Delta sold by unmatched exits: its proceeds
	// never reach cash, so it is never valued either.
	Unbacked Quantity
}

// Timeline is the reconstructed quantity history of every position key.
type Timeline struct {
	Keys      []PositionKey
	Synthetic []SyntheticEntry

	// OpeningQuantity is the real opening quantity per key; only keys where
	// it is zero may have their synthetic entry seeded as capital.
	OpeningQuantity map[PositionKey]Quantity
	Types           map[PositionKey]InstrumentType
	Inception       Date

	events   map[PositionKey][]PositionEvent
	hints    map[PositionKey]Money
	warnings []Warning
}

// BuildTimeline reconstructs per-key position events from matcher output
// and injects synthetic openings for holdings and exits that predate the
// available history.
//
// A synthetic entry is dated the day before the later of the symbol's own
// earliest activity and inception, so that appreciation before the symbol
// shows up is not attributed to the measured window. A symbol with no
// activity at all is anchored on inception.
func BuildTimeline(match *MatchResult, holdings []Holding, inception Date) *Timeline {
	t := &Timeline{
		OpeningQuantity: maps.Clone(match.OpeningQuantity),
		Types:           make(map[PositionKey]InstrumentType),
		Inception:       inception,
		events:          make(map[PositionKey][]PositionEvent),
		hints:           make(map[PositionKey]Money),
	}

	earliest := make(map[string]Date)        // per symbol, any direction
	firstOfKey := make(map[PositionKey]Date) // per key
	for _, tx := range match.sorted {
		if tx.Symbol == "" {
			continue
		}
		earliest[tx.Symbol] = MinDate(earliest[tx.Symbol], tx.When)
		if key, ok := tx.Key(); ok {
			firstOfKey[key] = MinDate(firstOfKey[key], tx.When)
			if _, ok := t.Types[key]; !ok {
				t.Types[key] = tx.InstrumentType
			}
		}
	}

	held := make(map[PositionKey]Holding)
	unknownCost := make(map[PositionKey]bool)
	for _, h := range holdings {
		k := h.Key()
		agg, ok := held[k]
		if !ok {
			agg = Holding{Symbol: h.Symbol, Currency: h.Currency, Direction: h.Direction, InstrumentType: h.InstrumentType, CostBasis: M(0, h.Currency)}
		}
		agg.Quantity = agg.Quantity.Add(h.Quantity)
		// one unknown cost basis makes the aggregate unknown
		if h.CostBasis.IsZero() {
			unknownCost[k] = true
		} else {
			agg.CostBasis = agg.CostBasis.Add(h.CostBasis.In(h.Currency))
		}
		held[k] = agg
		if _, ok := t.Types[k]; !ok {
			t.Types[k] = h.InstrumentType
		}
	}

	anchor := func(key PositionKey) Date {
		on := inception
		if e := earliest[key.Symbol]; !e.IsZero() {
			on = MaxDate(e, inception)
		}
		on = on.Add(-1)
		// an opening can never come after the key's own first trade
		if first, ok := firstOfKey[key]; ok && !on.Before(first) {
			on = first.Add(-1)
		}
		return on
	}

	keys := make(map[PositionKey]struct{})
	for k := range held {
		keys[k] = struct{}{}
	}
	for k := range firstOfKey {
		keys[k] = struct{}{}
	}
	t.Keys = slices.SortedFunc(maps.Keys(keys), comparePositionKeys)

	for _, key := range t.Keys {
		h, isHeld := held[key]
		fully := !match.HasRealOpening(key)
		unmatched := match.unmatchedTotal(key)

		entry := SyntheticEntry{Key: key, InstrumentType: t.Types[key], FullySynthetic: fully, Unmatched: unmatched}
		if fully && isHeld && h.Quantity.IsPositive() {
			entry.Held = h.Quantity
			if !unknownCost[key] && !h.CostBasis.IsZero() {
				entry.CostBasis = h.CostBasis
				entry.PriceHint = h.CostBasis.Div(h.Quantity)
			}
		}
		entry.Quantity = entry.Held.Add(entry.Unmatched)
		if entry.Quantity.IsZero() {
			continue
		}
		if entry.PriceHint.IsZero() {
			for _, it := range match.Incomplete {
				if it.Key == key {
					entry.PriceHint = it.Price
					break
				}
			}
		}
		if entry.PriceHint.Currency() == "" {
			entry.PriceHint = M(0, key.Currency)
		}
		entry.On = anchor(key)
		t.Synthetic = append(t.Synthetic, entry)
		t.events[key] = append(t.events[key], PositionEvent{
			On:        entry.On,
			Delta:     entry.Quantity,
			Cost:      entry.PriceHint.Mul(entry.Quantity),
			Synthetic: true,
			Unbacked:  entry.Unmatched,
		})
		t.hints[key] = entry.PriceHint
	}

	// the unmatched part of an exit releases synthetic cost at the hint price
	for i, tx := range match.sorted {
		key, ok := tx.Key()
		if !ok {
			continue
		}
		if tx.IsEntry() {
			t.events[key] = append(t.events[key], PositionEvent{On: tx.When, Delta: tx.Quantity, Cost: tx.Notional()})
			continue
		}
		released := match.exitCost[i]
		u := match.unmatchedAt(i)
		if !u.IsZero() {
			released = released.Add(t.hints[key].Mul(u))
		}
		t.events[key] = append(t.events[key], PositionEvent{On: tx.When, Delta: tx.Quantity.Neg(), Cost: released.Neg(), Unbacked: u.Neg()})
	}
	for key := range t.events {
		slices.SortStableFunc(t.events[key], func(a, b PositionEvent) int { return a.On.Compare(b.On) })
	}

	t.reconcile(match, held, len(holdings) > 0)
	return t
}

// reconcile records keys whose reconstructed quantity disagrees with the
// broker snapshot. Nothing is corrected.
func (t *Timeline) reconcile(match *MatchResult, held map[PositionKey]Holding, haveSnapshot bool) {
	if !haveSnapshot {
		return
	}
	for _, key := range t.Keys {
		if !match.HasRealOpening(key) {
			continue
		}
		computed := match.OpenQuantity(key)
		reported := held[key].Quantity
		if !computed.Equal(reported) {
			t.warnings = append(t.warnings, Warning{
				Code:    WarnPositionMismatch,
				Symbol:  key.Symbol,
				Message: fmt.Sprintf("%s: reconstructed quantity %s, broker reports %s", key, computed, reported),
			})
		}
	}
}

// Events returns the ordered position events of a key.
func (t *Timeline) Events(key PositionKey) []PositionEvent { return t.events[key] }

// QuantityAsOf returns the absolute position size of key at the end of day on.
func (t *Timeline) QuantityAsOf(key PositionKey, on Date) Quantity {
	var q Quantity
	for _, e := range t.events[key] {
		if e.On.After(on) {
			break
		}
		q = q.Add(e.Delta)
	}
	return q
}

// OpenCostAsOf returns the entry cost of what is open on key at the end of day on.
func (t *Timeline) OpenCostAsOf(key PositionKey, on Date) Money {
	cost := M(0, key.Currency)
	for _, e := range t.events[key] {
		if e.On.After(on) {
			break
		}
		cost = cost.Add(e.Cost)
	}
	return cost
}

// ValuedAsOf returns the quantity and open cost of key that the NAV values at
// the end of day on. Quantity later sold by unmatched exits is left out.
func (t *Timeline) ValuedAsOf(key PositionKey, on Date) (Quantity, Money) {
	var q, unbacked Quantity
	cost := M(0, key.Currency)
	for _, e := range t.events[key] {
		if e.On.After(on) {
			break
		}
		q = q.Add(e.Delta)
		unbacked = unbacked.Add(e.Unbacked)
		cost = cost.Add(e.Cost)
	}
	if unbacked.IsZero() {
		return q, cost
	}
	return q.Sub(unbacked), cost.Sub(t.hints[key].Mul(unbacked))
}

// Start returns the earliest event date of the timeline, or the zero date.
func (t *Timeline) Start() Date {
	var start Date
	for _, events := range t.events {
		if len(events) > 0 {
			start = MinDate(start, events[0].On)
		}
	}
	return start
}

// IsFullySynthetic reports whether key never had a real opening.
func (t *Timeline) IsFullySynthetic(key PositionKey) bool {
	return !t.OpeningQuantity[key].IsPositive()
}
