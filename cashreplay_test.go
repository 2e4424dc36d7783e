package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replay(t *testing.T, txs []Transaction, holdings []Holding, inception string, m *MarketData) *CashReplay {
	t.Helper()
	if m == nil {
		m = NewMarketData("USD")
	}
	match := Match(txs)
	tl := BuildTimeline(match, holdings, day(inception))
	return ReplayCash(match, tl, m, 1)
}

func TestReplayCash_InferredFlows(t *testing.T) {
	c := replay(t, []Transaction{
		buy("AAA", "2024-01-01", 10, 100),
		sell("AAA", "2024-01-05", 10, 110),
	}, nil, "2024-01-01", nil)

	assert.False(t, c.Authoritative)
	require.Len(t, c.Flows, 1)
	assert.Equal(t, ExternalFlow{On: day("2024-01-01"), Amount: 1000, Kind: FlowInferred}, c.Flows[0])
	assert.InDelta(t, 0, c.BalanceAsOf(day("2024-01-04")), 1e-9)
	assert.InDelta(t, 1100, c.BalanceAsOf(day("2024-01-05")), 1e-9)
}

func TestReplayCash_PartialSuppression(t *testing.T) {
	// 8 sold, only 5 ever bought: exactly 3 shares of the exit are suppressed
	c := replay(t, []Transaction{
		buy("AAA", "2024-01-01", 5, 100),
		sell("AAA", "2024-01-02", 8, 110),
	}, nil, "2024-01-01", nil)

	assert.InDelta(t, 5*110, c.BalanceAsOf(day("2024-01-02")), 1e-9, "(Q−U) shares, not 0 and not Q")
	assert.InDelta(t, 3*110, c.Diagnostics.SuppressedNotional, 1e-9)
}

func TestReplayCash_SuppressesTheUnmatchedExit(t *testing.T) {
	// the lot is closed by the first sale; the second one has no opening
	c := replay(t, []Transaction{
		buy("AAA", "2024-01-01", 10, 100),
		sell("AAA", "2024-01-02", 10, 110),
		sell("AAA", "2024-01-02", 5, 200),
	}, nil, "2024-01-01", nil)

	assert.InDelta(t, 1100, c.BalanceAsOf(day("2024-01-02")), 1e-9)
	assert.InDelta(t, 5*200, c.Diagnostics.SuppressedNotional, 1e-9)
}

func TestReplayCash_SuppressionScalesFee(t *testing.T) {
	s := sell("AAA", "2024-01-02", 4, 100)
	s.Fee = USD(8)
	c := replay(t, []Transaction{buy("AAA", "2024-01-01", 1, 100), s}, nil, "2024-01-01", nil)

	// inferred 100 on day one, then +1×100 − 8×1/4
	assert.InDelta(t, 98, c.BalanceAsOf(day("2024-01-02")), 1e-9)
}

func TestReplayCash_AuthoritativeTransfers(t *testing.T) {
	c := replay(t, []Transaction{
		transfer("2024-01-01", 1000),
		buy("AAA", "2024-01-02", 15, 100),
		transfer("2024-01-03", -200),
	}, nil, "2024-01-01", nil)

	assert.True(t, c.Authoritative)
	require.Len(t, c.Flows, 2, "no flow is inferred")
	assert.Equal(t, FlowTransfer, c.Flows[0].Kind)
	assert.InDelta(t, -200, c.Flows[1].Amount, 1e-9)
	assert.InDelta(t, -500, c.BalanceAsOf(day("2024-01-02")), 1e-9, "margin use is valid")
	assert.InDelta(t, -700, c.BalanceAsOf(day("2024-01-03")), 1e-9)
}

func TestReplayCash_CashRecords(t *testing.T) {
	c := replay(t, []Transaction{
		transfer("2024-01-01", 100),
		{Symbol: "AAA", Currency: "USD", Type: Dividend, Amount: USD(7), When: day("2024-01-02")},
		{Currency: "USD", Type: Fee, Amount: USD(-2), When: day("2024-01-03")},
		{Currency: "USD", Type: Fee, Fee: USD(1), When: day("2024-01-04")},
	}, nil, "2024-01-01", nil)

	assert.InDelta(t, 107, c.BalanceAsOf(day("2024-01-02")), 1e-9)
	assert.InDelta(t, 104, c.BalanceAsOf(day("2024-01-04")), 1e-9)
}

func TestReplayCash_SeedsSyntheticAtCost(t *testing.T) {
	c := replay(t, nil, []Holding{held("XYZ", 50, 5000)}, "2024-01-15", nil)

	require.Len(t, c.Flows, 1)
	assert.Equal(t, ExternalFlow{On: day("2024-01-14"), Amount: 5000, Kind: FlowSeed, Symbol: "XYZ", Currency: "USD"}, c.Flows[0])
	assert.Equal(t, 1, c.Diagnostics.SeededFlows)
	assert.Equal(t, 0, c.Balance.Len(), "an in-kind contribution moves no cash")
	assert.True(t, c.IsSeeded(PositionKey{"XYZ", "USD", Long}))
	assert.False(t, c.IsSeeded(PositionKey{"XYZ", "GBP", Long}), "another listing of the symbol")
}

func TestReplayCash_NoSeed(t *testing.T) {
	unknown := held("UNK", 10, 0)
	shortHeld := held("SHT", 10, 1000)
	shortHeld.Direction = ShortSide
	future := held("FUT", 1, 100)
	future.InstrumentType = Future
	c := replay(t, []Transaction{buy("REAL", "2024-01-02", 1, 10)},
		[]Holding{unknown, shortHeld, future, held("REAL", 5, 50)}, "2024-01-02", nil)

	for _, f := range c.Flows {
		assert.NotEqual(t, FlowSeed, f.Kind, f.Symbol)
	}
	assert.Contains(t, codes(c.Diagnostics), WarnShortSeedUnsupported)
}

func TestReplayCash_DerivativesFeeOnly(t *testing.T) {
	entry := buy("OPT", "2024-01-01", 100, 2)
	entry.InstrumentType, entry.Fee = Option, USD(1)
	exit := sell("OPT", "2024-01-02", 100, 3)
	exit.InstrumentType, exit.Fee = Option, USD(1)

	c := replay(t, []Transaction{entry, exit}, nil, "2024-01-01", nil)

	require.Len(t, c.Flows, 1)
	assert.InDelta(t, 1, c.Flows[0].Amount, 1e-9, "only the fee needed capital")
	// realized P&L of 100 settles on the close date, minus the fee
	assert.InDelta(t, 99, c.BalanceAsOf(day("2024-01-02")), 1e-9)
}

func TestReplayCash_MissingFX(t *testing.T) {
	tx := buy("SAP", "2024-01-01", 1, 100)
	tx.Currency, tx.Price, tx.Fee, tx.Amount = "EUR", EUR(100), EUR(0), EUR(0)
	m := NewMarketData("USD")
	match := Match([]Transaction{tx})
	c := ReplayCash(match, BuildTimeline(match, nil, day("2024-01-01")), m, 1.5)

	assert.Equal(t, 1, c.Diagnostics.MissingFX)
	assert.Contains(t, codes(c.Diagnostics), WarnMissingFX)
	require.Len(t, c.Flows, 1)
	assert.InDelta(t, 150, c.Flows[0].Amount, 1e-9)

	m.SetRate("EUR", day("2023-12-29"), 1.1)
	c = ReplayCash(match, BuildTimeline(match, nil, day("2024-01-01")), m, 1.5)
	assert.Zero(t, c.Diagnostics.MissingFX)
	assert.InDelta(t, 110, c.Flows[0].Amount, 1e-9)
}

func TestReplayCash_LookAheadFX(t *testing.T) {
	tx := quoted(buy("SAP", "2024-01-02", 1, 100), "EUR")
	m := NewMarketData("USD")
	m.SetRate("EUR", day("2024-01-20"), 1.1)
	match := Match([]Transaction{tx})
	c := ReplayCash(match, BuildTimeline(match, nil, day("2024-01-02")), m, 1.5)

	assert.Zero(t, c.Diagnostics.MissingFX)
	assert.Equal(t, 1, c.Diagnostics.LookAheadFX)
	assert.Contains(t, codes(c.Diagnostics), WarnLookAheadFX)
	assert.False(t, c.Diagnostics.Reliable())
	require.Len(t, c.Flows, 1)
	assert.InDelta(t, 110, c.Flows[0].Amount, 1e-9)
}
