package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// EUR is a helper for test to create euro money from const
func EUR(v float64) Money { return M(v, "EUR") }

// day is a helper to write dates in tests.
func day(s string) Date { return MustParse(s) }

// trade returns a USD equity trade of the default account.
func trade(typ TxType, symbol, on string, quantity, price float64) Transaction {
	return Transaction{
		Symbol:         symbol,
		Currency:       "USD",
		Type:           typ,
		Quantity:       Q(quantity),
		Price:          USD(price),
		Fee:            USD(0),
		Amount:         USD(0),
		When:           day(on),
		InstrumentType: Equity,
		Multiplier:     Q(1),
	}
}

func buy(symbol, on string, q, p float64) Transaction   { return trade(Buy, symbol, on, q, p) }
func sell(symbol, on string, q, p float64) Transaction  { return trade(Sell, symbol, on, q, p) }
func short(symbol, on string, q, p float64) Transaction { return trade(Short, symbol, on, q, p) }
func cover(symbol, on string, q, p float64) Transaction { return trade(Cover, symbol, on, q, p) }

// quoted returns tx with its amounts in another currency.
func quoted(tx Transaction, currency string) Transaction {
	tx.Currency = currency
	tx.Price, tx.Fee, tx.Amount = tx.Price.In(currency), tx.Fee.In(currency), tx.Amount.In(currency)
	return tx
}

// transfer returns a USD deposit (positive) or withdrawal (negative).
func transfer(on string, amount float64) Transaction {
	return Transaction{Currency: "USD", Type: Transfer, Amount: USD(amount), When: day(on)}
}

// held returns a long USD equity holding.
func held(symbol string, quantity, costBasis float64) Holding {
	return Holding{
		Symbol:         symbol,
		Currency:       "USD",
		Quantity:       Q(quantity),
		CostBasis:      USD(costBasis),
		InstrumentType: Equity,
	}
}

// in sets the account of transactions.
func in(account string, txs ...Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		tx.AccountID = account
		out[i] = tx
	}
	return out
}

// prices is a helper to fill a market with constant USD closes over a range.
func prices(m *MarketData, symbol, from, to string, close float64) *MarketData {
	for d := range NewRange(day(from), day(to)).Days() {
		m.SetPrice(symbol, "USD", d, close)
	}
	return m
}

func assertMoney(t *testing.T, want, got Money) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s %s got %s %s", want.Decimal(), want.Currency(), got.Decimal(), got.Currency())
}

func assertQuantity(t *testing.T, want, got Quantity) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s got %s", want, got)
}

func codes(d Diagnostics) []WarningCode {
	var out []WarningCode
	for _, w := range d.Warnings {
		out = append(out, w.Code)
	}
	return out
}
