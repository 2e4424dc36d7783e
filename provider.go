package performance

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoData is returned by providers that have no data for a request. It
// is never a zero price or a rate of 1.
var ErrNoData = errors.New("no data")

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Empty
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Empty:
		return "empty"
	default:
		return "failed"
	}
}

// Outcome is the result of a price series request: Success with a non
// empty series, Empty when the provider legitimately has nothing, or Failed.
type Outcome struct {
	Kind   OutcomeKind
	Series History[float64]
	Err    error
}

// Found wraps a series. An empty series is reported as Empty.
func Found(series History[float64]) Outcome {
	if series.Len() == 0 {
		return Outcome{Kind: Empty}
	}
	return Outcome{Kind: Success, Series: series}
}

// NotFound is the Empty outcome.
func NotFound() Outcome { return Outcome{Kind: Empty} }

// Failure wraps an error. A nil error or ErrNoData is reported as Empty.
func Failure(err error) Outcome {
	if err == nil || errors.Is(err, ErrNoData) {
		return Outcome{Kind: Empty, Err: err}
	}
	return Outcome{Kind: Failed, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("success(%d)", o.Series.Len())
	case Failed:
		return fmt.Sprintf("failed(%v)", o.Err)
	default:
		return "empty"
	}
}

// PriceProvider supplies historical close prices, in the instrument
// currency.
type PriceProvider interface {
	Name() string
	// CanPrice reports whether the provider knows how to price that type of
	// instrument at all. The chain skips providers that cannot.
	CanPrice(InstrumentType) bool
	FetchCloseSeries(ctx context.Context, in Instrument, from, to Date) Outcome
}

// FXProvider supplies the value of one unit of a currency in the reporting
// currency. Missing data is reported as ErrNoData, never defaulted.
type FXProvider interface {
	Rate(ctx context.Context, currency string, on Date) (float64, error)
	Series(ctx context.Context, currency string, from, to Date) (History[float64], error)
}
