package performance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Engine runs analyses against a pair of providers.
//
// Providers are only called while loading the request-scoped market data.
// An Engine can run concurrent analyses; the only state they share is
// whatever cache sits behind the providers.
type Engine struct {
	Prices  PriceProvider
	FX      FXProvider
	Options Options
}

// Run loads the market data the feed needs and aggregates its accounts.
func (e *Engine) Run(ctx context.Context, scope string, feed Feed) (*PerformanceResult, error) {
	opts := e.Options.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
	}
	if feed.IsEmpty() {
		return nil, scopeErrorf(ErrEmptyScope, scope, "no transaction and no holding")
	}
	window, err := feed.Window(opts)
	if err != nil {
		return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
	}

	market, warnings := LoadMarket(ctx, e.Prices, e.FX, feed.Instruments(), feed.Currencies(), opts.ReportingCurrency, window, opts.Logger)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading market data: %w", err)
	}

	res, err := Aggregate(scope, feed, market, opts)
	if err != nil {
		var se *ScopeError
		if errors.As(err, &se) {
			opts.Logger.Info("analysis failed", zap.String("scope", scope), zap.String("kind", string(se.Kind)), zap.Error(se.Err))
		}
		return nil, err
	}
	for _, w := range warnings {
		res.Diagnostics.warn(w)
	}
	return res, nil
}
