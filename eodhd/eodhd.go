// Package eodhd prices instruments and currencies with the EOD Historical
// Data API (https://eodhd.com).
package eodhd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/etnz/performance"
	"github.com/shopspring/decimal"
)

// eodBar is one day of the /eod endpoint.
//
//	{
//		"date": "2024-02-13",
//		"open": 675.066,
//		"high": 684.219,
//		"low": 648.659,
//		"close": 668.445,
//		"adjusted_close": 67.705,
//		"volume": 0
//	}
type eodBar struct {
	Date  performance.Date    `json:"date"`
	Open  decimal.Decimal     `json:"open"`
	Close decimal.NullDecimal `json:"close"` // invalid when missing or null
}

// fetchBars returns daily bars for ticker, both bounds included.
func (c *Client) fetchBars(ctx context.Context, ticker string, from, to performance.Date) ([]eodBar, error) {
	addr := fmt.Sprintf("%s/eod/%s?fmt=json&api_token=%s&from=%s&to=%s",
		c.baseURL, url.PathEscape(ticker), url.QueryEscape(c.apiKey), from, to)
	var bars []eodBar
	if err := c.jwget(ctx, addr, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// Prices is the EODHD price provider. Symbols without an exchange suffix
// are looked up on Exchange.
type Prices struct {
	client *Client
	// Exchange is the default EODHD exchange code, "US" if empty.
	Exchange string
	// Tickers overrides the ticker of a symbol.
	Tickers map[string]string
}

// NewPrices returns a price provider.
func NewPrices(c *Client) *Prices { return &Prices{client: c, Exchange: "US"} }

func (p *Prices) Name() string { return "eodhd" }

// CanPrice excludes derivatives: EODHD end of day data has no option or
// future contract series.
func (p *Prices) CanPrice(t performance.InstrumentType) bool { return !t.IsDerivative() }

// Ticker returns the EODHD ticker of an instrument.
func (p *Prices) Ticker(in performance.Instrument) string {
	if t, ok := p.Tickers[in.Symbol]; ok {
		return t
	}
	if strings.Contains(in.Symbol, ".") {
		return in.Symbol
	}
	if in.Type == performance.Crypto {
		return fmt.Sprintf("%s-%s.CC", in.Symbol, in.Currency)
	}
	exchange := p.Exchange
	if exchange == "" {
		exchange = "US"
	}
	return in.Symbol + "." + exchange
}

func (p *Prices) FetchCloseSeries(ctx context.Context, in performance.Instrument, from, to performance.Date) performance.Outcome {
	bars, err := p.client.fetchBars(ctx, p.Ticker(in), from, to)
	if err != nil {
		return performance.Failure(err)
	}
	var series performance.History[float64]
	// a zero close is a legitimate price (worthless option, delisted stock)
	for _, b := range bars {
		if b.Close.Valid && !b.Close.Decimal.IsNegative() {
			series.Append(b.Date, b.Close.Decimal.InexactFloat64())
		}
	}
	return performance.Found(series)
}

// FX is the EODHD rate provider for one reporting currency.
type FX struct {
	client    *Client
	reporting string
}

// NewFX returns rates of currencies in reporting.
func NewFX(c *Client, reporting string) *FX { return &FX{client: c, reporting: reporting} }

// Rate returns the rate on a day, or the latest within the previous week.
func (f *FX) Rate(ctx context.Context, currency string, on performance.Date) (float64, error) {
	series, err := f.Series(ctx, currency, on.Add(-7), on)
	if err != nil {
		return 0, err
	}
	rate, ok := series.ValueAsOf(on)
	if !ok {
		return 0, performance.ErrNoData
	}
	return rate, nil
}

// Series returns daily rates of currency. The ticker for forex is
// "fromCurrency+toCurrency.FOREX".
//
// EODHD forex close values are mostly equal to the open: the open of the
// next day is closer to the truth, so each rate is the next day open.
func (f *FX) Series(ctx context.Context, currency string, from, to performance.Date) (performance.History[float64], error) {
	var series performance.History[float64]
	if strings.EqualFold(currency, f.reporting) {
		return series, fmt.Errorf("%s is the reporting currency: %w", currency, performance.ErrNoData)
	}
	ticker := fmt.Sprintf("%s%s.FOREX", strings.ToUpper(currency), strings.ToUpper(f.reporting))
	bars, err := f.client.fetchBars(ctx, ticker, from.Add(1), to.Add(1))
	if err != nil {
		return series, err
	}
	for _, b := range bars {
		if b.Open.IsPositive() {
			series.Append(b.Date.Add(-1), b.Open.InexactFloat64())
		}
	}
	if series.Len() == 0 {
		return series, performance.ErrNoData
	}
	return series, nil
}
