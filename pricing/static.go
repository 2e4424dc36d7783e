package pricing

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/etnz/performance"
)

// Static serves prices and rates from memory. It is loaded once and then
// only read, so it is safe for concurrent fetches but not for concurrent
// Add calls.
type Static struct {
	name   string
	prices map[string]*performance.History[float64] // by symbol or symbol/currency
	rates  map[string]*performance.History[float64] // by currency
}

// NewStatic returns an empty provider.
func NewStatic(name string) *Static {
	return &Static{
		name:   name,
		prices: make(map[string]*performance.History[float64]),
		rates:  make(map[string]*performance.History[float64]),
	}
}

// AddPrice records the close of symbol on a day. An empty currency serves
// the symbol in any currency; otherwise only that listing.
func (s *Static) AddPrice(symbol, currency string, on performance.Date, price float64) {
	k := symbol
	if currency != "" {
		k += "/" + strings.ToUpper(currency)
	}
	h, ok := s.prices[k]
	if !ok {
		h = new(performance.History[float64])
		s.prices[k] = h
	}
	h.Append(on, price)
}

// AddRate records the value of one unit of currency on a day.
func (s *Static) AddRate(currency string, on performance.Date, rate float64) {
	currency = strings.ToUpper(currency)
	h, ok := s.rates[currency]
	if !ok {
		h = new(performance.History[float64])
		s.rates[currency] = h
	}
	h.Append(on, rate)
}

// staticRecord is one line of a static price file: either a close for a
// symbol, optionally in a currency, or a rate for a currency.
type staticRecord struct {
	On       performance.Date `json:"on"`
	Symbol   string           `json:"symbol,omitempty"`
	Close    *float64         `json:"close,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Rate     *float64         `json:"rate,omitempty"`
}

// LoadStatic reads a JSONL file of {"on","symbol","close"} (with an optional
// "currency") and {"on","currency","rate"} records.
func LoadStatic(name string, r io.Reader) (*Static, error) {
	s := NewStatic(name)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec staticRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		switch {
		case rec.Symbol != "" && rec.Close != nil:
			s.AddPrice(rec.Symbol, rec.Currency, rec.On, *rec.Close)
		case rec.Currency != "" && rec.Rate != nil:
			s.AddRate(rec.Currency, rec.On, *rec.Rate)
		default:
			return nil, fmt.Errorf("line %d: want a symbol close or a currency rate", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading static prices: %w", err)
	}
	return s, nil
}

func (s *Static) Name() string { return s.name }

func (s *Static) CanPrice(performance.InstrumentType) bool { return true }

func (s *Static) FetchCloseSeries(_ context.Context, in performance.Instrument, from, to performance.Date) performance.Outcome {
	h, ok := s.prices[in.Symbol+"/"+strings.ToUpper(in.Currency)]
	if !ok {
		h, ok = s.prices[in.Symbol]
	}
	if !ok {
		return performance.NotFound()
	}
	return performance.Found(h.Slice(performance.NewRange(from, to)))
}

// Rate returns the rate on a day or the latest one before it.
func (s *Static) Rate(_ context.Context, currency string, on performance.Date) (float64, error) {
	h, ok := s.rates[strings.ToUpper(currency)]
	if !ok {
		return 0, performance.ErrNoData
	}
	rate, ok := h.ValueAsOf(on)
	if !ok {
		return 0, performance.ErrNoData
	}
	return rate, nil
}

func (s *Static) Series(_ context.Context, currency string, from, to performance.Date) (performance.History[float64], error) {
	h, ok := s.rates[strings.ToUpper(currency)]
	if !ok {
		return performance.History[float64]{}, performance.ErrNoData
	}
	series := h.Slice(performance.NewRange(from, to))
	if series.Len() == 0 {
		return series, performance.ErrNoData
	}
	return series, nil
}
