package performance

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// record types of the feed.
const (
	recordTransaction = "transaction"
	recordHolding     = "holding"
)

// txRecord is the JSONL representation of a transaction.
type txRecord struct {
	Symbol         string          `json:"symbol,omitempty"`
	Currency       string          `json:"currency"`
	Type           string          `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Fee            decimal.Decimal `json:"fee"`
	Amount         decimal.Decimal `json:"amount"`
	On             Date            `json:"on"`
	Account        string          `json:"account,omitempty"`
	InstrumentType InstrumentType  `json:"instrument,omitempty"`
	Multiplier     decimal.Decimal `json:"multiplier"`
}

// holdingRecord is the JSONL representation of a snapshot line.
type holdingRecord struct {
	Symbol         string          `json:"symbol"`
	Currency       string          `json:"currency"`
	Direction      string          `json:"direction,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	Account        string          `json:"account,omitempty"`
	InstrumentType InstrumentType  `json:"instrument,omitempty"`
}

func (r txRecord) transaction() (Transaction, error) {
	typ, err := ParseTxType(r.Type)
	if err != nil {
		return Transaction{}, err
	}
	instrument := r.InstrumentType
	if instrument == "" && r.Symbol != "" {
		instrument = Equity
	}
	multiplier := Q(r.Multiplier)
	if multiplier.IsZero() {
		multiplier = Q(1)
	}
	cur := strings.ToUpper(r.Currency)
	return Transaction{
		Symbol:         r.Symbol,
		Currency:       cur,
		Type:           typ,
		Quantity:       Q(r.Quantity),
		Price:          M(r.Price, cur),
		Fee:            M(r.Fee, cur),
		Amount:         M(r.Amount, cur),
		When:           r.On,
		AccountID:      r.Account,
		InstrumentType: instrument,
		Multiplier:     multiplier,
	}, nil
}

func (r holdingRecord) holding() (Holding, error) {
	dir, err := ParseDirection(r.Direction)
	if err != nil {
		return Holding{}, err
	}
	instrument := r.InstrumentType
	if instrument == "" {
		instrument = Equity
	}
	cur := strings.ToUpper(r.Currency)
	return Holding{
		AccountID:      r.Account,
		Symbol:         r.Symbol,
		Currency:       cur,
		Direction:      dir,
		Quantity:       Q(r.Quantity),
		CostBasis:      M(r.CostBasis, cur),
		InstrumentType: instrument,
	}, nil
}

// DecodeFeed decodes a JSONL stream of "transaction" and "holding" records.
func DecodeFeed(r io.Reader) (Feed, error) {
	var feed Feed
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(strings.TrimSpace(string(lineBytes))) == 0 {
			continue
		}

		var identifier struct {
			Record string `json:"record"`
		}
		if err := json.Unmarshal(lineBytes, &identifier); err != nil {
			return Feed{}, fmt.Errorf("line %d: could not identify record in %q: %w", line, string(lineBytes), err)
		}

		switch identifier.Record {
		case recordTransaction:
			var rec txRecord
			if err := json.Unmarshal(lineBytes, &rec); err != nil {
				return Feed{}, fmt.Errorf("line %d: %w", line, err)
			}
			tx, err := rec.transaction()
			if err != nil {
				return Feed{}, fmt.Errorf("line %d: %w", line, err)
			}
			feed.Transactions = append(feed.Transactions, tx)
		case recordHolding:
			var rec holdingRecord
			if err := json.Unmarshal(lineBytes, &rec); err != nil {
				return Feed{}, fmt.Errorf("line %d: %w", line, err)
			}
			h, err := rec.holding()
			if err != nil {
				return Feed{}, fmt.Errorf("line %d: %w", line, err)
			}
			feed.Holdings = append(feed.Holdings, h)
		default:
			return Feed{}, fmt.Errorf("line %d: unknown record %q", line, identifier.Record)
		}
	}
	if err := scanner.Err(); err != nil {
		return Feed{}, fmt.Errorf("reading feed: %w", err)
	}
	return feed, nil
}

// EncodeFeed writes a feed as JSONL, transactions first.
func EncodeFeed(w io.Writer, feed Feed) error {
	enc := json.NewEncoder(w)
	for _, tx := range feed.Transactions {
		rec := struct {
			Record string `json:"record"`
			txRecord
		}{recordTransaction, txRecord{
			Symbol:         tx.Symbol,
			Currency:       tx.Currency,
			Type:           string(tx.Type),
			Quantity:       tx.Quantity.Decimal(),
			Price:          tx.Price.Decimal(),
			Fee:            tx.Fee.Decimal(),
			Amount:         tx.Amount.Decimal(),
			On:             tx.When,
			Account:        tx.AccountID,
			InstrumentType: tx.InstrumentType,
			Multiplier:     tx.Multiplier.Decimal(),
		}}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	for _, h := range feed.Holdings {
		rec := struct {
			Record string `json:"record"`
			holdingRecord
		}{recordHolding, holdingRecord{
			Symbol:         h.Symbol,
			Currency:       h.Currency,
			Direction:      strings.ToLower(h.Direction.String()),
			Quantity:       h.Quantity.Decimal(),
			CostBasis:      h.CostBasis.Decimal(),
			Account:        h.AccountID,
			InstrumentType: h.InstrumentType,
		}}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
