package performance

import (
	"maps"
	"slices"
)

// MatchResult is the output of the FIFO matcher.
type MatchResult struct {
	Closed     []ClosedTrade
	Open       []OpenLot // the current positions, by key then age
	Incomplete []IncompleteTrade

	// OpeningQuantity is the sum of real entry quantities per key. A key
	// missing from the map never had a real opening transaction.
	OpeningQuantity map[PositionKey]Quantity

	// exitCost is the entry cost (in the key currency) released by each
	// exit, indexed by the position of the exit in the sorted stream.
	exitCost map[int]Money
	// exitUnmatched is the quantity of each exit that no lot absorbed, by
	// the same index.
	exitUnmatched map[int]Quantity
	sorted        []Transaction
}

// Match replays trades in chronological order and matches exits against
// lots, oldest first, independently per position key.
//
// No input is fatal: an exit larger than what is open yields an
// IncompleteTrade carrying the unmatched quantity.
func Match(txs []Transaction) *MatchResult {
	res := &MatchResult{
		OpeningQuantity: make(map[PositionKey]Quantity),
		exitCost:        make(map[int]Money),
		exitUnmatched:   make(map[int]Quantity),
		sorted:          sortTransactions(txs),
	}
	books := make(map[PositionKey]*book)

	for i, tx := range res.sorted {
		key, ok := tx.Key()
		if !ok {
			continue
		}
		b, ok := books[key]
		if !ok {
			b = new(book)
			books[key] = b
		}

		if tx.IsEntry() {
			b.push(OpenLot{
				Key:            key,
				Opened:         tx.When,
				Price:          tx.Price,
				Original:       tx.Quantity,
				Remaining:      tx.Quantity,
				InstrumentType: tx.InstrumentType,
				Multiplier:     tx.Multiplier,
				AccountID:      tx.AccountID,
			})
			res.OpeningQuantity[key] = res.OpeningQuantity[key].Add(tx.Quantity)
			continue
		}

		released := M(0, tx.Currency)
		unmatched := b.consume(tx.Quantity, func(l *OpenLot, taken Quantity) {
			pnl := tx.Price.Sub(l.Price).Mul(taken).Mul(Q(key.Direction.Sign()))
			res.Closed = append(res.Closed, ClosedTrade{
				Key:            key,
				Opened:         l.Opened,
				Closed:         tx.When,
				Quantity:       taken,
				EntryPrice:     l.Price,
				ExitPrice:      tx.Price,
				InstrumentType: l.InstrumentType,
				Multiplier:     l.Multiplier,
				RealizedPnL:    pnl,
			})
			released = released.Add(l.Price.Mul(taken))
		})
		res.exitCost[i] = released
		if !unmatched.IsZero() {
			res.exitUnmatched[i] = unmatched
			res.Incomplete = append(res.Incomplete, IncompleteTrade{
				Key:            key,
				On:             tx.When,
				Quantity:       tx.Quantity,
				Unmatched:      unmatched,
				Price:          tx.Price,
				InstrumentType: tx.InstrumentType,
				Multiplier:     tx.Multiplier,
			})
		}
	}

	for _, key := range slices.SortedFunc(maps.Keys(books), comparePositionKeys) {
		res.Open = append(res.Open, books[key].open()...)
	}
	return res
}

// Transactions returns the sorted stream the result was computed from.
func (r *MatchResult) Transactions() []Transaction { return r.sorted }

// RealizedPnL returns the realized P&L per currency.
func (r *MatchResult) RealizedPnL() map[string]Money {
	totals := make(map[string]Money)
	for _, t := range r.Closed {
		totals[t.Key.Currency] = totals[t.Key.Currency].Add(t.RealizedPnL)
	}
	return totals
}

// OpenQuantity returns the remaining quantity of a key.
func (r *MatchResult) OpenQuantity(key PositionKey) Quantity {
	var total Quantity
	for _, l := range r.Open {
		if l.Key == key {
			total = total.Add(l.Remaining)
		}
	}
	return total
}

// HasRealOpening reports whether the key had at least one real entry.
func (r *MatchResult) HasRealOpening(key PositionKey) bool {
	return r.OpeningQuantity[key].IsPositive()
}

// unmatchedAt returns the unmatched quantity of the i-th sorted transaction,
// zero for entries and fully matched exits.
func (r *MatchResult) unmatchedAt(i int) Quantity { return r.exitUnmatched[i] }

// unmatchedTotal returns the total unmatched quantity of a key.
func (r *MatchResult) unmatchedTotal(key PositionKey) Quantity {
	var total Quantity
	for _, it := range r.Incomplete {
		if it.Key == key {
			total = total.Add(it.Unmatched)
		}
	}
	return total
}
