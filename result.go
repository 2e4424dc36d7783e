package performance

import (
	"fmt"
	"slices"
)

// WarningCode classifies a caveat applied while computing a result.
type WarningCode string

const (
	WarnLookAheadPrice       WarningCode = "look_ahead_price"
	WarnMissingPrice         WarningCode = "missing_price"
	WarnMissingFX            WarningCode = "missing_fx"
	WarnLookAheadFX          WarningCode = "look_ahead_fx"
	WarnDenominatorFloor     WarningCode = "denominator_floor"
	WarnSkippedDay           WarningCode = "skipped_day"
	WarnSyntheticSeed        WarningCode = "synthetic_seed"
	WarnShortSeedUnsupported WarningCode = "short_seed_unsupported"
	WarnUnmatchedExit        WarningCode = "unmatched_exit"
	WarnPositionMismatch     WarningCode = "position_mismatch"
	WarnAccountExcluded      WarningCode = "account_excluded"
	WarnAggregationFallback  WarningCode = "aggregation_fallback"
	WarnProviderFailed       WarningCode = "provider_failed"
)

// degrading reports whether a warning of this code makes the result unreliable.
func (c WarningCode) degrading() bool {
	switch c {
	case WarnLookAheadPrice, WarnMissingPrice, WarnMissingFX, WarnLookAheadFX, WarnSkippedDay,
		WarnShortSeedUnsupported, WarnUnmatchedExit, WarnAccountExcluded:
		return true
	}
	return false
}

// Warning is a component-local issue that did not stop the computation.
type Warning struct {
	Code    WarningCode `json:"code"`
	On      Date        `json:"on,omitzero"`
	Symbol  string      `json:"symbol,omitempty"`
	Account string      `json:"account,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	s := string(w.Code)
	if !w.On.IsZero() {
		s += " " + w.On.String()
	}
	if w.Account != "" {
		s += " [" + w.Account + "]"
	}
	if w.Symbol != "" {
		s += " " + w.Symbol
	}
	return s + ": " + w.Message
}

// Diagnostics is the data-quality report of a computation.
type Diagnostics struct {
	SyntheticPositions int     `json:"synthetic_positions"`
	SeededFlows        int     `json:"seeded_flows"`
	UnmatchedTrades    int     `json:"unmatched_trades"`
	SuppressedNotional float64 `json:"suppressed_notional"` // in the reporting currency
	MissingFX          int     `json:"missing_fx"`
	LookAheadFX        int     `json:"look_ahead_fx"`
	LookAheadPrices    int     `json:"look_ahead_prices"`
	MissingPrices      int     `json:"missing_prices"`
	SkippedDays        int     `json:"skipped_days"`
	DenominatorFloors  int     `json:"denominator_floors"`
	ExcludedAccounts   int     `json:"excluded_accounts"`

	Warnings []Warning `json:"warnings"`
}

func (d *Diagnostics) warn(w Warning) { d.Warnings = append(d.Warnings, w) }

func (d *Diagnostics) warnf(code WarningCode, on Date, symbol, format string, args ...any) {
	d.warn(Warning{Code: code, On: on, Symbol: symbol, Message: fmt.Sprintf(format, args...)})
}

// merge adds the counters and warnings of o into d.
func (d *Diagnostics) merge(o Diagnostics) {
	d.SyntheticPositions += o.SyntheticPositions
	d.SeededFlows += o.SeededFlows
	d.UnmatchedTrades += o.UnmatchedTrades
	d.SuppressedNotional += o.SuppressedNotional
	d.MissingFX += o.MissingFX
	d.LookAheadFX += o.LookAheadFX
	d.LookAheadPrices += o.LookAheadPrices
	d.MissingPrices += o.MissingPrices
	d.SkippedDays += o.SkippedDays
	d.DenominatorFloors += o.DenominatorFloors
	d.ExcludedAccounts += o.ExcludedAccounts
	d.Warnings = append(d.Warnings, o.Warnings...)
}

// Reliable is false as soon as one caveat that can bias returns was applied.
func (d *Diagnostics) Reliable() bool {
	return !slices.ContainsFunc(d.Warnings, func(w Warning) bool { return w.Code.degrading() })
}

// reported reports whether a warning of code was recorded for symbol.
func (d *Diagnostics) reported(code WarningCode, symbol string) bool {
	return slices.ContainsFunc(d.Warnings, func(w Warning) bool { return w.Code == code && w.Symbol == symbol })
}

// Has reports whether a warning with that code was recorded.
func (d *Diagnostics) Has(code WarningCode) bool {
	return slices.ContainsFunc(d.Warnings, func(w Warning) bool { return w.Code == code })
}

// PeriodReturn is the return of one calendar month.
type PeriodReturn struct {
	Period Range   `json:"period"`
	Return float64 `json:"return"`
	Growth float64 `json:"growth"` // value of one unit invested at the start of the window
}

// PerformanceResult is the self-contained output of an analysis.
type PerformanceResult struct {
	Scope             string `json:"scope"`
	ReportingCurrency string `json:"reporting_currency"`
	Mode              Mode   `json:"mode"`
	Window            Range  `json:"window"`

	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`

	Periods          []PeriodReturn `json:"periods"`
	CumulativeReturn float64        `json:"cumulative_return"`

	// Series is the valued capital series the returns were computed on.
	// The aggregator consumes it directly.
	Series Series `json:"series"`

	Closed     []ClosedTrade     `json:"closed_trades"`
	Open       []OpenLot         `json:"open_lots"`
	Incomplete []IncompleteTrade `json:"incomplete_trades"`
	Synthetic  []SyntheticEntry  `json:"synthetic_entries"`
	Flows      []ExternalFlow    `json:"flows"`
	Accounts   []string          `json:"accounts,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
	Reliable    bool        `json:"reliable"`
}

// ErrorKind names a scope-level impossibility.
type ErrorKind string

const (
	ErrEmptyScope     ErrorKind = "empty_scope"
	ErrNoPriceData    ErrorKind = "no_price_data"
	ErrInvalidOptions ErrorKind = "invalid_options"
)

// ScopeError is returned when a whole analysis cannot produce a result. It
// is distinct from a legitimate zero result.
type ScopeError struct {
	Kind  ErrorKind
	Scope string
	Err   error
}

func (e *ScopeError) Error() string {
	msg := string(e.Kind)
	if e.Scope != "" {
		msg = e.Scope + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScopeError) Unwrap() error { return e.Err }

func scopeErrorf(kind ErrorKind, scope, format string, args ...any) *ScopeError {
	return &ScopeError{Kind: kind, Scope: scope, Err: fmt.Errorf(format, args...)}
}
