package performance

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// TxType is the kind of a normalized transaction.
type TxType string

const (
	Buy      TxType = "BUY"
	Sell     TxType = "SELL"
	Short    TxType = "SHORT"
	Cover    TxType = "COVER"
	Fee      TxType = "fee"
	Dividend TxType = "dividend"
	Transfer TxType = "transfer"
)

// ParseTxType parses the feed representation of a transaction type. It is
// case insensitive.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	case "short":
		return Short, nil
	case "cover":
		return Cover, nil
	case "fee":
		return Fee, nil
	case "dividend":
		return Dividend, nil
	case "transfer":
		return Transfer, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// IsTrade returns true for the four types handled by the FIFO matcher.
func (t TxType) IsTrade() bool { return t == Buy || t == Sell || t == Short || t == Cover }

// Direction is the side of a lot book. Long and Short books of the same
// symbol never merge.
type Direction int

const (
	Long Direction = iota
	ShortSide
)

func (d Direction) String() string {
	if d == ShortSide {
		return "SHORT"
	}
	return "LONG"
}

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() int64 {
	if d == ShortSide {
		return -1
	}
	return 1
}

// ParseDirection parses "long" or "short", empty meaning long.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "long":
		return Long, nil
	case "short":
		return ShortSide, nil
	default:
		return Long, fmt.Errorf("unknown direction %q", s)
	}
}

// InstrumentType classifies what a symbol is, so that providers can decide
// whether they price it and the cash replay can pick a cash policy.
type InstrumentType string

const (
	Equity InstrumentType = "equity"
	ETF    InstrumentType = "etf"
	Fund   InstrumentType = "fund"
	Bond   InstrumentType = "bond"
	Crypto InstrumentType = "crypto"
	Option InstrumentType = "option"
	Future InstrumentType = "future"
)

// IsDerivative reports margin instruments whose notional never moves cash.
func (t InstrumentType) IsDerivative() bool { return t == Option || t == Future }

// PositionKey is the unit of lot tracking.
type PositionKey struct {
	Symbol    string
	Currency  string
	Direction Direction
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Symbol, k.Currency, k.Direction)
}

func comparePositionKeys(a, b PositionKey) int {
	return cmp.Or(
		strings.Compare(a.Symbol, b.Symbol),
		strings.Compare(a.Currency, b.Currency),
		cmp.Compare(a.Direction, b.Direction),
	)
}

// Transaction is an immutable normalized record from the upstream feed.
type Transaction struct {
	Symbol         string
	Currency       string
	Type           TxType
	Quantity       Quantity // already multiplier-adjusted, always positive
	Price          Money    // per unit, in Currency
	Fee            Money    // in Currency
	Amount         Money    // signed cash amount for fee, dividend and transfer records
	When           Date
	AccountID      string
	InstrumentType InstrumentType
	Multiplier     Quantity
}

// Key returns the position key the transaction trades, and false for
// non-trade records.
func (tx Transaction) Key() (PositionKey, bool) {
	switch tx.Type {
	case Buy, Sell:
		return PositionKey{tx.Symbol, tx.Currency, Long}, true
	case Short, Cover:
		return PositionKey{tx.Symbol, tx.Currency, ShortSide}, true
	default:
		return PositionKey{}, false
	}
}

// IsEntry returns true for transactions opening a lot.
func (tx Transaction) IsEntry() bool { return tx.Type == Buy || tx.Type == Short }

// IsExit returns true for transactions consuming lots.
func (tx Transaction) IsExit() bool { return tx.Type == Sell || tx.Type == Cover }

// Notional is price × quantity in the transaction currency.
func (tx Transaction) Notional() Money { return tx.Price.Mul(tx.Quantity) }

// Validate checks the fields the engine relies on.
func (tx Transaction) Validate() error {
	if tx.When.IsZero() {
		return fmt.Errorf("transaction %s %s has no date", tx.Type, tx.Symbol)
	}
	if tx.Currency == "" {
		return fmt.Errorf("transaction %s %s on %s has no currency", tx.Type, tx.Symbol, tx.When)
	}
	if tx.Type.IsTrade() {
		if tx.Symbol == "" {
			return fmt.Errorf("%s on %s has no symbol", tx.Type, tx.When)
		}
		if !tx.Quantity.IsPositive() {
			return fmt.Errorf("%s %s on %s: quantity must be positive, got %s", tx.Type, tx.Symbol, tx.When, tx.Quantity)
		}
		if tx.Price.IsNegative() {
			return fmt.Errorf("%s %s on %s: negative price %s", tx.Type, tx.Symbol, tx.When, tx.Price.Decimal())
		}
	}
	return nil
}

// Holding is a line of the current brokerage snapshot.
type Holding struct {
	AccountID      string
	Symbol         string
	Currency       string
	Direction      Direction
	Quantity       Quantity
	CostBasis      Money // total cost in Currency; zero means unknown
	InstrumentType InstrumentType
}

// Key returns the position key of the holding.
func (h Holding) Key() PositionKey { return PositionKey{h.Symbol, h.Currency, h.Direction} }

// Instrument identifies something a price provider can price.
type Instrument struct {
	Symbol   string
	Currency string
	Type     InstrumentType
}

// sortTransactions returns a chronologically sorted copy. On the same day
// entries come first so that same-day round trips can match.
func sortTransactions(txs []Transaction) []Transaction {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, func(a, b Transaction) int {
		if c := a.When.Compare(b.When); c != 0 {
			return c
		}
		return cmp.Compare(txRank(a), txRank(b))
	})
	return sorted
}

func txRank(tx Transaction) int {
	switch {
	case tx.IsEntry():
		return 0
	case tx.IsExit():
		return 1
	default:
		return 2
	}
}
