package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/performance"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan2  = performance.NewDate(2024, time.January, 2)
	jan3  = performance.NewDate(2024, time.January, 3)
	jan31 = performance.NewDate(2024, time.January, 31)
	aaa   = performance.Instrument{Symbol: "AAA", Currency: "USD", Type: performance.Equity}
)

// fakeProvider answers with a fixed outcome and counts its calls.
type fakeProvider struct {
	name    string
	types   []performance.InstrumentType
	outcome func(ctx context.Context) performance.Outcome
	calls   atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CanPrice(t performance.InstrumentType) bool {
	if len(f.types) == 0 {
		return true
	}
	for _, s := range f.types {
		if s == t {
			return true
		}
	}
	return false
}

func (f *fakeProvider) FetchCloseSeries(ctx context.Context, _ performance.Instrument, _, _ performance.Date) performance.Outcome {
	f.calls.Add(1)
	return f.outcome(ctx)
}

func series(values ...float64) performance.History[float64] {
	var h performance.History[float64]
	for i, v := range values {
		h.Append(jan2.Add(i), v)
	}
	return h
}

func succeed(values ...float64) func(context.Context) performance.Outcome {
	return func(context.Context) performance.Outcome { return performance.Found(series(values...)) }
}

func fail(err error) func(context.Context) performance.Outcome {
	return func(context.Context) performance.Outcome { return performance.Failure(err) }
}

func empty(context.Context) performance.Outcome { return performance.NotFound() }

func TestChain_FallsThrough(t *testing.T) {
	broken := &fakeProvider{name: "broken", outcome: fail(errors.New("503"))}
	nothing := &fakeProvider{name: "nothing", outcome: empty}
	fundsOnly := &fakeProvider{name: "funds", types: []performance.InstrumentType{performance.Fund}, outcome: succeed(1)}
	good := &fakeProvider{name: "good", outcome: succeed(10, 11)}

	chain := NewChain(time.Second, nil, broken, nothing, fundsOnly, good)
	out := chain.FetchCloseSeries(context.Background(), aaa, jan2, jan3)

	require.Equal(t, performance.Success, out.Kind)
	assert.Equal(t, 2, out.Series.Len())
	assert.EqualValues(t, 1, broken.calls.Load())
	assert.EqualValues(t, 1, nothing.calls.Load())
	assert.EqualValues(t, 0, fundsOnly.calls.Load(), "cannot price equities")
	assert.True(t, chain.CanPrice(performance.Fund))
}

func TestChain_ReportsFailureOverEmpty(t *testing.T) {
	chain := NewChain(0, nil,
		&fakeProvider{name: "broken", outcome: fail(errors.New("503"))},
		&fakeProvider{name: "nothing", outcome: empty},
	)
	out := chain.FetchCloseSeries(context.Background(), aaa, jan2, jan3)
	assert.Equal(t, performance.Failed, out.Kind)
	assert.ErrorContains(t, out.Err, "503")

	chain = NewChain(0, nil, &fakeProvider{name: "nothing", outcome: empty})
	assert.Equal(t, performance.Empty, chain.FetchCloseSeries(context.Background(), aaa, jan2, jan3).Kind)
}

func TestChain_TimeoutFallsThrough(t *testing.T) {
	slow := &fakeProvider{name: "slow", outcome: func(ctx context.Context) performance.Outcome {
		<-ctx.Done()
		return performance.Failure(ctx.Err())
	}}
	good := &fakeProvider{name: "good", outcome: succeed(10)}

	chain := NewChain(20*time.Millisecond, nil, slow, good)
	out := chain.FetchCloseSeries(context.Background(), aaa, jan2, jan3)

	assert.Equal(t, performance.Success, out.Kind)
	assert.EqualValues(t, 1, slow.calls.Load())
}

func TestChain_CountsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(ProviderOutcomes.WithLabelValues("counted", "empty"))
	chain := NewChain(0, nil, &fakeProvider{name: "counted", outcome: empty})
	chain.FetchCloseSeries(context.Background(), aaa, jan2, jan3)
	assert.Equal(t, before+1, testutil.ToFloat64(ProviderOutcomes.WithLabelValues("counted", "empty")))
}

func TestCached_SingleFetchForConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: "slow", outcome: func(context.Context) performance.Outcome {
		<-release
		return performance.Found(series(10))
	}}
	cached := NewCached(p, NewMemoryCache(time.Hour), nil)

	const n = 20
	var wg sync.WaitGroup
	outcomes := make([]performance.Outcome, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = cached.FetchCloseSeries(context.Background(), aaa, jan2, jan31)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, p.calls.Load())
	for _, out := range outcomes {
		assert.Equal(t, performance.Success, out.Kind)
	}

	// later calls are served from the cache
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues("hit"))
	cached.FetchCloseSeries(context.Background(), aaa, jan2, jan31)
	assert.EqualValues(t, 1, p.calls.Load())
	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookups.WithLabelValues("hit")))
}

func TestCached_CanceledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: "slow", outcome: func(ctx context.Context) performance.Outcome {
		<-release
		if err := ctx.Err(); err != nil {
			return performance.Failure(err)
		}
		return performance.Found(series(10))
	}}
	cached := NewCached(p, NewMemoryCache(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan performance.Outcome, 1)
	go func() { first <- cached.FetchCloseSeries(ctx, aaa, jan2, jan31) }()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan performance.Outcome, 1)
	go func() { second <- cached.FetchCloseSeries(context.Background(), aaa, jan2, jan31) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	out := <-first
	assert.Equal(t, performance.Failed, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)

	close(release)
	out = <-second
	assert.Equal(t, performance.Success, out.Kind, "%v", out.Err)
	assert.EqualValues(t, 1, p.calls.Load())

	_, ok := cached.cache.Get(context.Background(), "price:slow:AAA:USD:2024-01-02:2024-01-31")
	assert.True(t, ok, "the shared fetch completed and was cached")
}

func TestCachedFX_CanceledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	fx := &slowFX{release: release}
	cached := NewCachedFX(fx, "USD", NewMemoryCache(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cached.Series(ctx, "EUR", jan2, jan31)
		first <- err
	}()
	require.Eventually(t, func() bool { return fx.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := cached.Series(context.Background(), "EUR", jan2, jan31)
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(release)
	assert.NoError(t, <-second)
	assert.EqualValues(t, 1, fx.calls.Load())
}

// slowFX answers series once released, failing when its context is done.
type slowFX struct {
	release chan struct{}
	calls   atomic.Int32
}

func (f *slowFX) Rate(context.Context, string, performance.Date) (float64, error) {
	return 0, performance.ErrNoData
}

func (f *slowFX) Series(ctx context.Context, _ string, _, _ performance.Date) (performance.History[float64], error) {
	f.calls.Add(1)
	<-f.release
	if err := ctx.Err(); err != nil {
		return performance.History[float64]{}, err
	}
	return series(1.1), nil
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	p := &fakeProvider{name: "broken", outcome: fail(errors.New("boom"))}
	cached := NewCached(p, NewMemoryCache(time.Hour), nil)

	for range 2 {
		out := cached.FetchCloseSeries(context.Background(), aaa, jan2, jan31)
		assert.Equal(t, performance.Failed, out.Kind)
	}
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestMemoryCache_Expires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", series(1, 2))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2, got.Len())

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestRedisCache_UnreachableIsAMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb, time.Minute, nil)
	ctx := context.Background()

	c.Set(ctx, "k", series(1))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

const staticJSONL = `
{"on":"2024-01-02","symbol":"AAA","close":100}
{"on":"2024-01-31","symbol":"AAA","close":110}
{"on":"2024-01-01","currency":"eur","rate":1.1}
{"on":"2024-01-02","symbol":"SHEL","close":70}
{"on":"2024-01-02","symbol":"SHEL","currency":"gbp","close":25}
`

func TestLoadStatic(t *testing.T) {
	s, err := LoadStatic("static", strings.NewReader(staticJSONL))
	require.NoError(t, err)
	ctx := context.Background()

	out := s.FetchCloseSeries(ctx, aaa, jan2, jan31)
	require.Equal(t, performance.Success, out.Kind)
	assert.Equal(t, 2, out.Series.Len())

	out = s.FetchCloseSeries(ctx, aaa, jan3, jan3)
	assert.Equal(t, performance.Empty, out.Kind)

	out = s.FetchCloseSeries(ctx, performance.Instrument{Symbol: "SHEL", Currency: "GBP"}, jan2, jan31)
	require.Equal(t, performance.Success, out.Kind)
	v, _ := out.Series.Get(jan2)
	assert.Equal(t, 25.0, v, "the listing in that currency")
	out = s.FetchCloseSeries(ctx, performance.Instrument{Symbol: "SHEL", Currency: "USD"}, jan2, jan31)
	require.Equal(t, performance.Success, out.Kind)
	v, _ = out.Series.Get(jan2)
	assert.Equal(t, 70.0, v, "the currency-less close")

	rate, err := s.Rate(ctx, "EUR", jan31)
	require.NoError(t, err)
	assert.Equal(t, 1.1, rate)

	_, err = s.Rate(ctx, "GBP", jan31)
	assert.ErrorIs(t, err, performance.ErrNoData)

	_, err = LoadStatic("bad", strings.NewReader(`{"on":"2024-01-02","symbol":"AAA"}`))
	assert.Error(t, err)
}

// brokenFX always fails.
type brokenFX struct{}

func (brokenFX) Rate(context.Context, string, performance.Date) (float64, error) {
	return 0, errors.New("down")
}
func (brokenFX) Series(context.Context, string, performance.Date, performance.Date) (performance.History[float64], error) {
	return performance.History[float64]{}, errors.New("down")
}

func TestFXChain(t *testing.T) {
	s, err := LoadStatic("static", strings.NewReader(staticJSONL))
	require.NoError(t, err)
	ctx := context.Background()

	chain := NewFXChain(time.Second, nil, brokenFX{}, s)
	rate, err := chain.Rate(ctx, "EUR", jan2)
	require.NoError(t, err)
	assert.Equal(t, 1.1, rate)

	_, err = NewFXChain(0, nil, s).Series(ctx, "JPY", jan2, jan31)
	assert.ErrorIs(t, err, performance.ErrNoData)

	_, err = NewFXChain(0, nil, s, brokenFX{}).Series(ctx, "JPY", jan2, jan31)
	assert.EqualError(t, err, "down", "a failure is not reported as missing data")
}

func TestEngine_StaticProviders(t *testing.T) {
	s, err := LoadStatic("static", strings.NewReader(staticJSONL))
	require.NoError(t, err)
	feed, err := performance.DecodeFeed(strings.NewReader(`
{"record":"transaction","type":"buy","symbol":"AAA","currency":"USD","quantity":10,"price":100,"on":"2024-01-02"}
`))
	require.NoError(t, err)

	cache := NewMemoryCache(time.Hour)
	engine := &performance.Engine{
		Prices:  NewCached(NewChain(time.Second, nil, s), cache, nil),
		FX:      NewCachedFX(s, "USD", cache, nil),
		Options: performance.Options{End: jan31},
	}
	res, err := engine.Run(context.Background(), "static", feed)
	require.NoError(t, err)

	assert.InDelta(t, 100, res.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0.10, res.CumulativeReturn, 1e-9)
	assert.Equal(t, 1, cache.Len())
}
