package cmd

import (
	"fmt"
	"os"

	"github.com/etnz/performance"
	"github.com/etnz/performance/eodhd"
	"github.com/etnz/performance/jsonfeed"
	"github.com/etnz/performance/pricing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// providers is the provider chain built from a configuration.
type providers struct {
	prices performance.PriceProvider
	fx     performance.FXProvider
	names  []string
	close  func() error
}

// newProviders builds the cached chains. Configured sources are tried in
// order: instrument feeds, EODHD, then the static price file.
func newProviders(cfg *performance.Config, logger *zap.Logger) (*providers, error) {
	pc := cfg.Providers
	p := &providers{close: func() error { return nil }}

	var cache pricing.Cache
	if pc.Redis != "" {
		rdb := redis.NewClient(&redis.Options{Addr: pc.Redis})
		cache = pricing.NewRedisCache(rdb, pc.CacheTTL, logger)
		p.close = rdb.Close
	} else {
		cache = pricing.NewMemoryCache(pc.CacheTTL)
	}

	var prices []performance.PriceProvider
	var rates []performance.FXProvider
	if len(pc.JSONFeed) > 0 {
		prices = append(prices, jsonfeed.New(pc.JSONFeed, nil, logger))
	}
	if pc.EODHD.APIKey != "" {
		opts := []eodhd.Option{eodhd.WithLogger(logger)}
		if pc.EODHD.BaseURL != "" {
			opts = append(opts, eodhd.WithBaseURL(pc.EODHD.BaseURL))
		}
		if pc.EODHD.CacheDir != "" {
			if err := os.MkdirAll(pc.EODHD.CacheDir, 0755); err != nil {
				return nil, fmt.Errorf("eodhd cache: %w", err)
			}
			opts = append(opts, eodhd.WithDiskCache(pc.EODHD.CacheDir))
		}
		client := eodhd.New(pc.EODHD.APIKey, opts...)
		prices = append(prices, eodhd.NewPrices(client))
		rates = append(rates, eodhd.NewFX(client, cfg.ReportingCurrency))
	}
	if pc.Prices != "" {
		f, err := os.Open(pc.Prices)
		if err != nil {
			return nil, fmt.Errorf("static prices: %w", err)
		}
		defer f.Close()
		static, err := pricing.LoadStatic(pc.Prices, f)
		if err != nil {
			return nil, err
		}
		prices = append(prices, static)
		rates = append(rates, static)
	}
	for _, pp := range prices {
		p.names = append(p.names, pp.Name())
	}

	p.prices = pricing.NewCached(pricing.NewChain(pc.Timeout, logger, prices...), cache, logger)
	p.fx = pricing.NewCachedFX(pricing.NewFXChain(pc.Timeout, logger, rates...), cfg.ReportingCurrency, cache, logger)
	return p, nil
}
