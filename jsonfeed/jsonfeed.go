// Package jsonfeed prices instruments from instrument-specific JSON
// endpoints, such as a fund manager's NAV page or an exchange ticker,
// selecting values with JSONPath expressions.
package jsonfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/performance"
	"go.uber.org/zap"
)

// Provider is a PriceProvider for the symbols it has an entry for. Other
// symbols are reported as Empty.
type Provider struct {
	feeds  map[string]performance.JSONFeedEntry
	http   *http.Client
	logger *zap.Logger
	today  func() performance.Date
}

// New returns a provider over entries. A nil client uses a default one.
func New(entries []performance.JSONFeedEntry, client *http.Client, logger *zap.Logger) *Provider {
	if client == nil {
		client = new(http.Client)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	feeds := make(map[string]performance.JSONFeedEntry, len(entries))
	for _, e := range entries {
		feeds[e.Symbol] = e
	}
	return &Provider{feeds: feeds, http: client, logger: logger, today: performance.Today}
}

func (p *Provider) Name() string { return "jsonfeed" }

func (p *Provider) CanPrice(performance.InstrumentType) bool { return len(p.feeds) > 0 }

// FetchCloseSeries reads the entry's document. When the entry has a date
// path, Path and DatePath select parallel lists of closes and dates;
// otherwise Path selects the latest value, dated today.
func (p *Provider) FetchCloseSeries(ctx context.Context, in performance.Instrument, from, to performance.Date) performance.Outcome {
	feed, ok := p.feeds[in.Symbol]
	if !ok {
		return performance.NotFound()
	}
	doc, err := p.get(ctx, feed.URL)
	if err != nil {
		return performance.Failure(fmt.Errorf("error retrieving %q: %w", in.Symbol, err))
	}

	var series performance.History[float64]
	if feed.DatePath == "" {
		val, err := latest(doc, feed.Path)
		if err != nil {
			return performance.Failure(fmt.Errorf("error parsing %q: %w", in.Symbol, err))
		}
		series.Append(p.today(), val)
	} else {
		series, err = history(doc, feed.Path, feed.DatePath)
		if err != nil {
			return performance.Failure(fmt.Errorf("error parsing %q: %w", in.Symbol, err))
		}
	}
	p.logger.Debug("json feed read", zap.String("symbol", in.Symbol), zap.Int("points", series.Len()))
	return performance.Found(series.Slice(performance.NewRange(from, to)))
}

func (p *Provider) get(ctx context.Context, addr string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v/%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// latest evaluates path to a single number.
func latest(doc any, path string) (float64, error) {
	jval, err := jsonpath.Get(path, doc)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", path, err)
	}
	// jsonpath is never clear about whether it returns a list of 1 answer,
	// or a single answer: keep the first one if any
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return 0, fmt.Errorf("%q: no value", path)
		}
		jval = jlist[0]
	}
	if jval == nil {
		return 0, fmt.Errorf("%q: no value", path)
	}
	val, err := number(jval)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", path, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%q: negative value %v", path, val)
	}
	return val, nil
}

// history evaluates parallel lists of closes and dates.
func history(doc any, path, datePath string) (performance.History[float64], error) {
	var series performance.History[float64]
	values, err := list(doc, path)
	if err != nil {
		return series, err
	}
	dates, err := list(doc, datePath)
	if err != nil {
		return series, err
	}
	if len(values) != len(dates) {
		return series, fmt.Errorf("%d values for %d dates", len(values), len(dates))
	}
	for i, jdate := range dates {
		if values[i] == nil {
			continue
		}
		s, ok := jdate.(string)
		if !ok {
			return series, fmt.Errorf("date %v is not a string", jdate)
		}
		on, err := performance.ParseDate(s)
		if err != nil {
			return series, err
		}
		val, err := number(values[i])
		if err != nil {
			return series, fmt.Errorf("value on %s: %w", on, err)
		}
		if val >= 0 {
			series.Append(on, val)
		}
	}
	return series, nil
}

func list(doc any, path string) ([]any, error) {
	jval, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	jlist, ok := jval.([]any)
	if !ok {
		return nil, fmt.Errorf("%q: not a list", path)
	}
	return jlist, nil
}

// number reads a JSON number. Some endpoints return values as strings with
// a decimal comma.
func number(jval any) (float64, error) {
	switch v := jval.(type) {
	case float64:
		return v, nil
	case string:
		s := strings.ReplaceAll(v, ",", ".")
		s = strings.ReplaceAll(s, " ", "")
		val, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid string %q: %w", v, err)
		}
		return val, nil
	default:
		return 0, fmt.Errorf("neither a float nor a string: %v", jval)
	}
}
