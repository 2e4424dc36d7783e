package performance

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_RoundTripScenario(t *testing.T) {
	feed := Feed{Transactions: []Transaction{
		buy("AAA", "2024-01-01", 10, 100),
		sell("AAA", "2024-01-05", 10, 110),
	}}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-01", "2024-01-31", 100)
	m.SetPrice("AAA", "USD", day("2024-01-05"), 110)

	res, err := Analyze("test", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	assert.InDelta(t, 100, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 0, res.UnrealizedPnL, 1e-9)
	assert.Empty(t, res.Incomplete)
	assert.True(t, res.Reliable, "%v", res.Diagnostics.Warnings)
	require.Len(t, res.Periods, 1)
	// 1000 inferred on day one, worth 1100 at month end
	assert.InDelta(t, 0.10, res.Periods[0].Return, 1e-9)
	assert.InDelta(t, 0.10, res.CumulativeReturn, 1e-9)
}

func TestAnalyze_SeededSyntheticMonth(t *testing.T) {
	// 50 shares held with no history, bought for 5000, worth 4500
	feed := Feed{Holdings: []Holding{held("XYZ", 50, 5000)}}
	m := prices(NewMarketData("USD"), "XYZ", "2024-01-01", "2024-01-31", 90)

	for _, mode := range []Mode{ModeDietz, ModeTWR} {
		t.Run(mode.String(), func(t *testing.T) {
			res, err := Analyze("test", feed, m, Options{
				Mode:      mode,
				Inception: day("2024-01-15"),
				End:       day("2024-01-31"),
			})
			require.NoError(t, err)

			require.Len(t, res.Periods, 1)
			assert.InDelta(t, -0.10, res.Periods[0].Return, 1e-9, "measured against the cost basis")
			assert.InDelta(t, 5000, res.Series.Base, 1e-9)
			assert.Equal(t, 1, res.Diagnostics.SyntheticPositions)
			assert.Equal(t, 1, res.Diagnostics.SeededFlows)
			assert.InDelta(t, -500, res.UnrealizedPnL, 1e-9)
		})
	}
}

func TestAnalyze_SyntheticOnlyMonthIsNotZero(t *testing.T) {
	// seeded at C, valued at V: month one returns (V−C)/C
	const c, v = 2000.0, 2300.0
	feed := Feed{Holdings: []Holding{held("XYZ", 10, c)}}
	m := prices(NewMarketData("USD"), "XYZ", "2024-03-01", "2024-03-31", v/10)

	res, err := Analyze("test", feed, m, Options{Inception: day("2024-03-01"), End: day("2024-03-31")})
	require.NoError(t, err)
	require.Len(t, res.Periods, 1)
	assert.InDelta(t, (v-c)/c, res.Periods[0].Return, 1e-9)
}

func TestAnalyze_LookAheadPrice(t *testing.T) {
	feed := Feed{Transactions: []Transaction{buy("AAA", "2024-01-02", 1, 100)}}
	m := NewMarketData("USD")
	m.SetPrice("AAA", "USD", day("2024-01-10"), 100)

	res, err := Analyze("test", feed, m, Options{Mode: ModeTWR, End: day("2024-01-10")})
	require.NoError(t, err)

	assert.True(t, res.Diagnostics.Has(WarnLookAheadPrice))
	assert.Positive(t, res.Diagnostics.LookAheadPrices)
	assert.False(t, res.Reliable)
}

func TestAnalyze_LookAheadFX(t *testing.T) {
	feed := Feed{Transactions: []Transaction{quoted(buy("SAP", "2024-01-02", 1, 100), "EUR")}}
	m := NewMarketData("USD")
	for d := range NewRange(day("2024-01-01"), day("2024-01-31")).Days() {
		m.SetPrice("SAP", "EUR", d, 100)
	}
	m.SetRate("EUR", day("2024-01-20"), 1.1)

	res, err := Analyze("test", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	assert.True(t, res.Diagnostics.Has(WarnLookAheadFX))
	assert.Positive(t, res.Diagnostics.LookAheadFX)
	assert.Zero(t, res.Diagnostics.MissingFX)
	assert.False(t, res.Reliable)
}

func TestAnalyze_SameSymbolInTwoCurrencies(t *testing.T) {
	feed := Feed{Transactions: []Transaction{
		buy("SHEL", "2024-01-02", 1, 70),
		quoted(buy("SHEL", "2024-01-02", 1, 25), "GBP"),
	}}
	m := prices(NewMarketData("USD"), "SHEL", "2024-01-01", "2024-01-31", 70)
	for d := range NewRange(day("2024-01-01"), day("2024-01-31")).Days() {
		m.SetPrice("SHEL", "GBP", d, 25)
	}
	m.SetRate("GBP", day("2024-01-01"), 1.25)

	res, err := Analyze("test", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	require.NotEmpty(t, res.Series.Points)
	last := res.Series.Points[len(res.Series.Points)-1]
	assert.InDelta(t, 70+25*1.25, last.Total, 1e-9)
	assert.InDelta(t, 0, res.UnrealizedPnL, 1e-9)
	assert.True(t, res.Reliable, "%v", res.Diagnostics.Warnings)
}

func TestAnalyze_OpenOptionIsMarkedToMarket(t *testing.T) {
	// the premium never moved cash: only the gain since the open counts
	entry := buy("OPT", "2024-01-02", 100, 2)
	entry.InstrumentType = Option
	feed := Feed{Transactions: []Transaction{entry}}
	m := prices(NewMarketData("USD"), "OPT", "2024-01-01", "2024-01-31", 3)

	res, err := Analyze("test", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	require.NotEmpty(t, res.Series.Points)
	last := res.Series.Points[len(res.Series.Points)-1]
	assert.InDelta(t, 0, last.Cash, 1e-9)
	assert.InDelta(t, 100*3-100*2, last.Positions, 1e-9)
	assert.InDelta(t, 100, res.UnrealizedPnL, 1e-9)
	assert.Empty(t, res.Flows)
}

func TestAnalyze_OpenShortIsALiability(t *testing.T) {
	feed := Feed{Transactions: []Transaction{short("AAA", "2024-01-02", 10, 100)}}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-01", "2024-01-31", 90)

	res, err := Analyze("test", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	require.NotEmpty(t, res.Series.Points)
	last := res.Series.Points[len(res.Series.Points)-1]
	assert.InDelta(t, 1000, last.Cash, 1e-9, "short proceeds")
	assert.InDelta(t, -900, last.Positions, 1e-9)
	assert.InDelta(t, 100, last.Total, 1e-9)
	assert.InDelta(t, 100, res.UnrealizedPnL, 1e-9)
}

func TestAnalyze_MissingPriceSkipsDays(t *testing.T) {
	feed := Feed{Transactions: []Transaction{
		buy("AAA", "2024-01-02", 1, 100),
		buy("BBB", "2024-01-02", 1, 100),
	}}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-02", "2024-01-05", 100)

	res, err := Analyze("test", feed, m, Options{Mode: ModeTWR, End: day("2024-01-05")})
	require.NoError(t, err)

	assert.False(t, res.Series.Complete())
	assert.True(t, res.Diagnostics.Has(WarnMissingPrice))
	assert.Equal(t, 4, res.Diagnostics.SkippedDays)
	assert.False(t, res.Reliable)
}

func TestAnalyze_ScopeErrors(t *testing.T) {
	tests := []struct {
		name string
		feed Feed
		m    *MarketData
		opts Options
		want ErrorKind
	}{
		{"empty", Feed{}, nil, Options{}, ErrEmptyScope},
		{"no price", Feed{Transactions: []Transaction{buy("AAA", "2024-01-02", 1, 1)}}, nil, Options{End: day("2024-01-31")}, ErrNoPriceData},
		{"no inception", Feed{Holdings: []Holding{held("AAA", 1, 1)}}, nil, Options{}, ErrInvalidOptions},
		{"currency", Feed{Holdings: []Holding{held("AAA", 1, 1)}}, nil, Options{ReportingCurrency: "XXXX"}, ErrInvalidOptions},
		{"market currency", Feed{Holdings: []Holding{held("AAA", 1, 1)}}, NewMarketData("EUR"), Options{ReportingCurrency: "USD"}, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze("test", tt.feed, tt.m, tt.opts)
			var se *ScopeError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.want, se.Kind)
		})
	}
}

func TestAnalyze_CashOnlyScope(t *testing.T) {
	feed := Feed{Transactions: []Transaction{transfer("2024-01-02", 100)}}

	res, err := Analyze("test", feed, nil, Options{End: day("2024-01-31")})
	require.NoError(t, err)
	require.Len(t, res.Periods, 1)
	assert.Zero(t, res.Periods[0].Return)
}

func TestAggregate_SingleAccountIsPlainAnalysis(t *testing.T) {
	feed := Feed{
		Transactions: in("acc-1",
			buy("AAA", "2024-01-02", 10, 100),
			sell("AAA", "2024-02-05", 4, 120),
		),
		Holdings: []Holding{{AccountID: "acc-1", Symbol: "AAA", Currency: "USD", Quantity: Q(6), CostBasis: USD(600), InstrumentType: Equity}},
	}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-01", "2024-03-31", 110)
	opts := Options{Mode: ModeTWR, End: day("2024-03-31")}

	plain, err := Analyze("scope", feed, m, opts)
	require.NoError(t, err)
	aggregated, err := Aggregate("scope", feed, m, opts)
	require.NoError(t, err)

	want, err := json.Marshal(plain)
	require.NoError(t, err)
	got, err := json.Marshal(aggregated)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestAggregate_SumsCapitalNotReturns(t *testing.T) {
	// a small account doubles while a large one is flat: the combined return
	// weighs them by capital
	feed := Feed{Transactions: append(
		in("small", buy("AAA", "2024-01-01", 1, 100)),
		in("large", buy("BBB", "2024-01-01", 9, 100))...,
	)}
	m := NewMarketData("USD")
	prices(m, "AAA", "2024-01-01", "2024-01-31", 100)
	m.SetPrice("AAA", "USD", day("2024-01-31"), 200)
	prices(m, "BBB", "2024-01-01", "2024-01-31", 100)

	res, err := Aggregate("all", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	assert.Equal(t, []string{"large", "small"}, res.Accounts)
	require.Len(t, res.Periods, 1)
	assert.InDelta(t, 0.10, res.Periods[0].Return, 1e-9, "not the 50% average")
	require.Len(t, res.Series.Points, 1)
	assert.InDelta(t, 1100, res.Series.Points[0].Total, 1e-9)
	assert.True(t, res.Reliable)
}

func TestAggregate_ExcludesFailingAccount(t *testing.T) {
	feed := Feed{Transactions: append(
		in("ok", buy("AAA", "2024-01-01", 1, 100)),
		in("broken", buy("ZZZ", "2024-01-01", 1, 100))...,
	)}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-01", "2024-01-31", 110)

	res, err := Aggregate("all", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, res.Accounts)
	assert.Equal(t, 1, res.Diagnostics.ExcludedAccounts)
	assert.True(t, res.Diagnostics.Has(WarnAccountExcluded))
	assert.False(t, res.Reliable)
	assert.InDelta(t, 0.10, res.CumulativeReturn, 1e-9)
}

func TestAggregate_FallsBackWhenAllAccountsFail(t *testing.T) {
	// "a" has an unpriced position and "b" nothing priced at all, but the
	// feed as a whole can still be valued
	feed := Feed{Transactions: append(
		in("a", buy("AAA", "2024-01-01", 1, 100), buy("ZZZ", "2024-01-01", 1, 100)),
		in("b", buy("ZZZ", "2024-01-01", 1, 100))...,
	)}
	m := prices(NewMarketData("USD"), "AAA", "2024-01-01", "2024-01-31", 100)

	res, err := Aggregate("all", feed, m, Options{End: day("2024-01-31")})
	require.NoError(t, err)

	assert.True(t, res.Diagnostics.Has(WarnAggregationFallback))
	assert.Empty(t, res.Accounts)
	assert.False(t, res.Reliable)
}

func TestFeed_Accounts(t *testing.T) {
	feed := Feed{
		Transactions: in("b", buy("AAA", "2024-01-01", 1, 1)),
		Holdings:     []Holding{{AccountID: "a"}, {AccountID: "c"}},
	}
	assert.Equal(t, []string{"a", "b", "c"}, feed.Accounts(), "closed-out accounts included")
	assert.Len(t, feed.ForAccount("b").Transactions, 1)
	assert.Empty(t, feed.ForAccount("b").Holdings)
}
