package performance

import (
	"context"
	"errors"
	"maps"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// priceLookback is how far before the window prices and rates are fetched,
// so that the first valuation finds a close at or before it.
const priceLookback = 10

// fetchConcurrency bounds the price series requests in flight per analysis.
const fetchConcurrency = 4

// MarketData is the request-scoped snapshot of prices and rates an
// analysis values positions with. It is never shared between analyses.
type MarketData struct {
	reporting string
	prices    map[string]*History[float64] // by listing, instrument currency
	rates     map[string]*History[float64] // by currency, in reporting currency
}

// NewMarketData returns an empty snapshot for a reporting currency.
func NewMarketData(reporting string) *MarketData {
	return &MarketData{
		reporting: reporting,
		prices:    make(map[string]*History[float64]),
		rates:     make(map[string]*History[float64]),
	}
}

// ReportingCurrency returns the currency rates are quoted in.
func (m *MarketData) ReportingCurrency() string { return m.reporting }

// listing keys the closes of a symbol quoted in a currency. The same symbol
// may trade on several venues in different currencies.
func listing(symbol, currency string) string { return symbol + "/" + currency }

// SetPrice records a close of symbol quoted in currency.
func (m *MarketData) SetPrice(symbol, currency string, on Date, close float64) {
	k := listing(symbol, currency)
	h, ok := m.prices[k]
	if !ok {
		h = new(History[float64])
		m.prices[k] = h
	}
	h.Append(on, close)
}

// SetRate records the value of one unit of currency in the reporting currency.
func (m *MarketData) SetRate(currency string, on Date, rate float64) {
	h, ok := m.rates[currency]
	if !ok {
		h = new(History[float64])
		m.rates[currency] = h
	}
	h.Append(on, rate)
}

// HasPrices reports whether at least one close is known for symbol in
// currency.
func (m *MarketData) HasPrices(symbol, currency string) bool {
	h, ok := m.prices[listing(symbol, currency)]
	return ok && h.Len() > 0
}

// Listings returns the priced "symbol/currency" keys, sorted.
func (m *MarketData) Listings() []string { return slices.Sorted(maps.Keys(m.prices)) }

// PriceAt returns the latest close of symbol in currency at or before on.
// When no earlier close exists the earliest later one is returned with
// lookAhead set. ok is false when the listing has no price at all.
func (m *MarketData) PriceAt(symbol, currency string, on Date) (price float64, lookAhead, ok bool) {
	h, found := m.prices[listing(symbol, currency)]
	if !found {
		return 0, false, false
	}
	if p, ok := h.ValueAsOf(on); ok {
		return p, false, true
	}
	if _, p, ok := h.ValueAfter(on); ok {
		return p, true, true
	}
	return 0, false, false
}

// RateAt returns the rate of currency at or before on. When no earlier rate
// exists the earliest later one is returned with lookAhead set. The
// reporting currency is always 1.
func (m *MarketData) RateAt(currency string, on Date) (rate float64, lookAhead, ok bool) {
	if currency == m.reporting || currency == "" {
		return 1, false, true
	}
	h, found := m.rates[currency]
	if !found {
		return 0, false, false
	}
	if r, ok := h.ValueAsOf(on); ok {
		return r, false, true
	}
	if _, r, ok := h.ValueAfter(on); ok {
		return r, true, true
	}
	return 0, false, false
}

// LoadMarket fetches everything an analysis over window needs from the
// providers: close series of instruments and rate series of currencies.
// Provider failures are not errors: they leave gaps the engines report as
// warnings. The returned warnings describe the failures.
func LoadMarket(ctx context.Context, prices PriceProvider, fx FXProvider, instruments []Instrument, currencies []string, reporting string, window Range, logger *zap.Logger) (*MarketData, []Warning) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := NewMarketData(reporting)
	var warnings []Warning
	from := window.From.Add(-priceLookback)

	foreign := make(map[string]struct{})
	for _, cur := range currencies {
		if cur != reporting && cur != "" {
			foreign[cur] = struct{}{}
		}
	}
	for _, in := range instruments {
		if in.Currency != reporting {
			foreign[in.Currency] = struct{}{}
		}
	}

	// Series are fetched concurrently and merged in instrument order.
	var outcomes []Outcome
	if prices != nil {
		outcomes = make([]Outcome, len(instruments))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fetchConcurrency)
		for i, in := range instruments {
			g.Go(func() error {
				outcomes[i] = prices.FetchCloseSeries(gctx, in, from, window.To)
				return nil
			})
		}
		_ = g.Wait()
	}
	for i, out := range outcomes {
		in := instruments[i]
		switch out.Kind {
		case Success:
			for on, v := range out.Series.Values() {
				m.SetPrice(in.Symbol, in.Currency, on, v)
			}
		case Failed:
			logger.Warn("price series failed", zap.String("symbol", in.Symbol), zap.Error(out.Err))
			warnings = append(warnings, Warning{Code: WarnProviderFailed, Symbol: in.Symbol, Message: out.Err.Error()})
		default:
			logger.Debug("no price series", zap.String("symbol", in.Symbol))
		}
	}

	logger.Debug("prices loaded", zap.Strings("listings", m.Listings()))
	if fx == nil {
		return m, warnings
	}
	for _, cur := range slices.Sorted(maps.Keys(foreign)) {
		series, err := fx.Series(ctx, cur, from, window.To)
		if err != nil {
			if !errors.Is(err, ErrNoData) {
				logger.Warn("fx series failed", zap.String("currency", cur), zap.Error(err))
				warnings = append(warnings, Warning{Code: WarnProviderFailed, Symbol: cur, Message: err.Error()})
			}
			continue
		}
		for on, v := range series.Values() {
			m.SetRate(cur, on, v)
		}
	}
	return m, warnings
}
