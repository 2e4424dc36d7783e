package performance

// OpenLot is a discrete entry-priced quantity consumed FIFO by exits.
type OpenLot struct {
	Key            PositionKey
	Opened         Date
	Price          Money    // entry price per unit
	Original       Quantity // quantity at entry
	Remaining      Quantity
	InstrumentType InstrumentType
	Multiplier     Quantity
	AccountID      string
}

// ClosedTrade is the immutable fact of an exit consuming (part of) a lot.
type ClosedTrade struct {
	Key            PositionKey
	Opened, Closed Date
	Quantity       Quantity
	EntryPrice     Money
	ExitPrice      Money
	InstrumentType InstrumentType // from the entry lot
	Multiplier     Quantity       // from the entry lot
	RealizedPnL    Money          // in the key currency
}

// IncompleteTrade is an exit whose quantity exceeded every matchable lot.
type IncompleteTrade struct {
	Key            PositionKey
	On             Date
	Quantity       Quantity // the full exit quantity
	Unmatched      Quantity // the part no lot could absorb
	Price          Money
	InstrumentType InstrumentType
	Multiplier     Quantity
}

// book is the FIFO queue of one position key.
//
// Lots live in an append-only arena; queue holds arena indexes of the lots
// that still have a remaining quantity, oldest first, starting at head.
type book struct {
	arena []OpenLot
	queue []int
	head  int
}

// push appends a new lot at the back of the queue.
func (b *book) push(l OpenLot) {
	b.arena = append(b.arena, l)
	b.queue = append(b.queue, len(b.arena)-1)
}

// consume removes up to q units oldest-first, calling fill for each lot
// fragment it takes. It returns the quantity it could not consume.
func (b *book) consume(q Quantity, fill func(l *OpenLot, taken Quantity)) Quantity {
	for !q.IsZero() && b.head < len(b.queue) {
		l := &b.arena[b.queue[b.head]]
		taken := MinQ(l.Remaining, q)
		l.Remaining = l.Remaining.Sub(taken)
		q = q.Sub(taken)
		fill(l, taken)
		if l.Remaining.IsZero() {
			b.head++
		}
	}
	return q
}

// open returns a copy of the lots still queued.
func (b *book) open() []OpenLot {
	lots := make([]OpenLot, 0, len(b.queue)-b.head)
	for _, i := range b.queue[b.head:] {
		lots = append(lots, b.arena[i])
	}
	return lots
}
