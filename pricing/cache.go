package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/etnz/performance"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache stores series by key for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) (performance.History[float64], bool)
	Set(ctx context.Context, key string, series performance.History[float64])
}

// MemoryCache is an in-process Cache with a single TTL for every entry.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	series  performance.History[float64]
	expires time.Time
}

// NewMemoryCache creates an empty cache. A non positive ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (performance.History[float64], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return performance.History[float64]{}, false
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		c.mu.Lock()
		// the entry may have been refreshed in between
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return performance.History[float64]{}, false
	}
	return e.series, true
}

func (c *MemoryCache) Set(_ context.Context, key string, series performance.History[float64]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{series: series, expires: c.now().Add(c.ttl)}
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache is a Cache shared between processes through Redis. Series are
// stored as JSON. Redis errors are logged and behave as misses.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisCache wraps a redis client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "perf:", logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (performance.History[float64], bool) {
	var series performance.History[float64]
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return series, false
	}
	if err := json.Unmarshal(data, &series); err != nil {
		c.logger.Warn("corrupted cache entry", zap.String("key", key), zap.Error(err))
		return series, false
	}
	return series, true
}

func (c *RedisCache) Set(ctx context.Context, key string, series performance.History[float64]) {
	data, err := json.Marshal(series)
	if err != nil {
		c.logger.Warn("cannot encode series", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Cached is a read-through cache in front of a price provider. Concurrent
// requests for the same key share a single provider call, which outlives
// the cancellation of the caller that started it. Only successful outcomes
// are cached.
type Cached struct {
	provider performance.PriceProvider
	cache    Cache
	logger   *zap.Logger
	group    singleflight.Group
}

// NewCached wraps provider with cache.
func NewCached(provider performance.PriceProvider, cache Cache, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{provider: provider, cache: cache, logger: logger}
}

func (c *Cached) Name() string { return c.provider.Name() }

func (c *Cached) CanPrice(t performance.InstrumentType) bool { return c.provider.CanPrice(t) }

func (c *Cached) FetchCloseSeries(ctx context.Context, in performance.Instrument, from, to performance.Date) performance.Outcome {
	key := fmt.Sprintf("price:%s:%s:%s:%s:%s", c.provider.Name(), in.Symbol, in.Currency, from, to)
	if series, ok := c.cache.Get(ctx, key); ok {
		CacheLookups.WithLabelValues("hit").Inc()
		return performance.Found(series)
	}
	CacheLookups.WithLabelValues("miss").Inc()
	c.logger.Debug("price cache miss", zap.String("key", key))

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// a call that completed since the lookup above has filled the cache
		if series, ok := c.cache.Get(shared, key); ok {
			return performance.Found(series), nil
		}
		out := c.provider.FetchCloseSeries(shared, in, from, to)
		if out.Kind == performance.Success {
			c.cache.Set(shared, key, out.Series)
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return performance.Failure(ctx.Err())
	case r := <-ch:
		return r.Val.(performance.Outcome)
	}
}

// CachedFX is the FXProvider counterpart of Cached. Only series are cached;
// single rates go straight to the provider.
type CachedFX struct {
	provider  performance.FXProvider
	reporting string
	cache     Cache
	logger    *zap.Logger
	group     singleflight.Group
}

// NewCachedFX wraps provider with cache. Rates are keyed by the reporting
// currency the provider was built for.
func NewCachedFX(provider performance.FXProvider, reporting string, cache Cache, logger *zap.Logger) *CachedFX {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFX{provider: provider, reporting: reporting, cache: cache, logger: logger}
}

func (c *CachedFX) Rate(ctx context.Context, currency string, on performance.Date) (float64, error) {
	return c.provider.Rate(ctx, currency, on)
}

func (c *CachedFX) Series(ctx context.Context, currency string, from, to performance.Date) (performance.History[float64], error) {
	key := fmt.Sprintf("fx:%s%s:%s:%s", currency, c.reporting, from, to)
	if series, ok := c.cache.Get(ctx, key); ok {
		CacheLookups.WithLabelValues("hit").Inc()
		return series, nil
	}
	CacheLookups.WithLabelValues("miss").Inc()
	c.logger.Debug("fx cache miss", zap.String("key", key))

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if series, ok := c.cache.Get(shared, key); ok {
			return series, nil
		}
		series, err := c.provider.Series(shared, currency, from, to)
		if err != nil {
			return nil, err
		}
		if series.Len() == 0 {
			return nil, performance.ErrNoData
		}
		c.cache.Set(shared, key, series)
		return series, nil
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return performance.History[float64]{}, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return performance.History[float64]{}, r.Err
	}
	return r.Val.(performance.History[float64]), nil
}
