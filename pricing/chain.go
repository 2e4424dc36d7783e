// Package pricing assembles price and rate providers: a fallback chain with
// per-call timeouts, a TTL cache populated at most once per key, and a
// static provider for offline data.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/performance"
	"go.uber.org/zap"
)

// Chain tries price providers in priority order. Providers that cannot price
// the instrument type are skipped; a failure, a timeout or an empty answer
// falls through to the next one.
type Chain struct {
	Providers []performance.PriceProvider
	// Timeout bounds each provider call. Zero means no bound.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewChain returns a chain over providers, highest priority first.
func NewChain(timeout time.Duration, logger *zap.Logger, providers ...performance.PriceProvider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{Providers: providers, Timeout: timeout, Logger: logger}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) CanPrice(t performance.InstrumentType) bool {
	for _, p := range c.Providers {
		if p.CanPrice(t) {
			return true
		}
	}
	return false
}

// FetchCloseSeries returns the first successful outcome. When no provider
// succeeds it returns the last failure, so that a vendor outage is not
// mistaken for an instrument without data.
func (c *Chain) FetchCloseSeries(ctx context.Context, in performance.Instrument, from, to performance.Date) performance.Outcome {
	result := performance.NotFound()
	for _, p := range c.Providers {
		if !p.CanPrice(in.Type) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return performance.Failure(err)
		}
		out := c.fetch(ctx, p, in, from, to)
		switch out.Kind {
		case performance.Success:
			return out
		case performance.Failed:
			c.logger().Warn("price provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("symbol", in.Symbol),
				zap.Error(out.Err))
			result = out
		default:
			c.logger().Debug("price provider has no data",
				zap.String("provider", p.Name()),
				zap.String("symbol", in.Symbol))
		}
	}
	return result
}

func (c *Chain) fetch(ctx context.Context, p performance.PriceProvider, in performance.Instrument, from, to performance.Date) performance.Outcome {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()
	start := time.Now()
	out := p.FetchCloseSeries(ctx, in, from, to)
	ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	ProviderOutcomes.WithLabelValues(p.Name(), out.Kind.String()).Inc()
	if out.Kind == performance.Failed && out.Err == nil {
		out.Err = fmt.Errorf("%s: unknown failure", p.Name())
	}
	return out
}

func (c *Chain) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// FXChain tries rate providers in priority order, the same way Chain does
// for prices.
type FXChain struct {
	Providers []performance.FXProvider
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewFXChain returns a chain over providers, highest priority first.
func NewFXChain(timeout time.Duration, logger *zap.Logger, providers ...performance.FXProvider) *FXChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FXChain{Providers: providers, Timeout: timeout, Logger: logger}
}

// Rate returns the first rate found. It returns ErrNoData only when every
// provider legitimately had nothing.
func (c *FXChain) Rate(ctx context.Context, currency string, on performance.Date) (float64, error) {
	err := error(performance.ErrNoData)
	for i, p := range c.Providers {
		cctx, cancel := withTimeout(ctx, c.Timeout)
		rate, perr := p.Rate(cctx, currency, on)
		cancel()
		if perr == nil {
			ProviderOutcomes.WithLabelValues(fxName(i), performance.Success.String()).Inc()
			return rate, nil
		}
		err = c.failed(i, currency, perr, err)
	}
	return 0, err
}

// Series returns the first non empty series found.
func (c *FXChain) Series(ctx context.Context, currency string, from, to performance.Date) (performance.History[float64], error) {
	err := error(performance.ErrNoData)
	for i, p := range c.Providers {
		cctx, cancel := withTimeout(ctx, c.Timeout)
		series, perr := p.Series(cctx, currency, from, to)
		cancel()
		if perr == nil && series.Len() > 0 {
			ProviderOutcomes.WithLabelValues(fxName(i), performance.Success.String()).Inc()
			return series, nil
		}
		if perr == nil {
			perr = performance.ErrNoData
		}
		err = c.failed(i, currency, perr, err)
	}
	return performance.History[float64]{}, err
}

// failed logs a provider error and returns the error the chain should
// report if nothing else succeeds: failures win over ErrNoData.
func (c *FXChain) failed(i int, currency string, err, previous error) error {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := fxName(i)
	if errors.Is(err, performance.ErrNoData) {
		ProviderOutcomes.WithLabelValues(name, performance.Empty.String()).Inc()
		logger.Debug("fx provider has no data", zap.Int("provider", i), zap.String("currency", currency))
		return previous
	}
	ProviderOutcomes.WithLabelValues(name, performance.Failed.String()).Inc()
	logger.Warn("fx provider failed, trying next", zap.Int("provider", i), zap.String("currency", currency), zap.Error(err))
	return err
}

func fxName(i int) string { return fmt.Sprintf("fx#%d", i) }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
