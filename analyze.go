package performance

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Options controls an analysis.
type Options struct {
	ReportingCurrency string
	Mode              Mode
	// Inception is the first day of the measured window. It defaults to the
	// date of the earliest transaction.
	Inception Date
	// End is the last day of the measured window. It defaults to today.
	End Date
	// FallbackFXRate is used, and reported, when a rate is missing.
	FallbackFXRate float64
	// Epsilon is the denominator at or below which a return floors to 0.
	Epsilon float64
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ReportingCurrency == "" {
		o.ReportingCurrency = "USD"
	}
	if o.FallbackFXRate == 0 {
		o.FallbackFXRate = 1
	}
	if o.Epsilon == 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	if err := ValidateCurrency(o.ReportingCurrency); err != nil {
		return err
	}
	if o.FallbackFXRate < 0 {
		return fmt.Errorf("negative fallback fx rate %g", o.FallbackFXRate)
	}
	if o.Epsilon < 0 {
		return fmt.Errorf("negative epsilon %g", o.Epsilon)
	}
	if !o.Inception.IsZero() && !o.End.IsZero() && o.End.Before(o.Inception) {
		return fmt.Errorf("end %s is before inception %s", o.End, o.Inception)
	}
	return nil
}

// Feed is a pre-normalized scope: transactions and the current brokerage
// snapshot.
type Feed struct {
	Transactions []Transaction
	Holdings     []Holding
}

// IsEmpty reports whether the feed has nothing to analyze.
func (f Feed) IsEmpty() bool { return len(f.Transactions) == 0 && len(f.Holdings) == 0 }

// Accounts returns the sorted union of account ids found in holdings and
// transactions, so that closed-out accounts are not missed.
func (f Feed) Accounts() []string {
	ids := make(map[string]struct{})
	for _, h := range f.Holdings {
		ids[h.AccountID] = struct{}{}
	}
	for _, tx := range f.Transactions {
		ids[tx.AccountID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(ids))
}

// ForAccount returns the part of the feed that belongs to one account.
func (f Feed) ForAccount(id string) Feed {
	var out Feed
	for _, tx := range f.Transactions {
		if tx.AccountID == id {
			out.Transactions = append(out.Transactions, tx)
		}
	}
	for _, h := range f.Holdings {
		if h.AccountID == id {
			out.Holdings = append(out.Holdings, h)
		}
	}
	return out
}

// Instruments returns every priceable instrument of the feed.
func (f Feed) Instruments() []Instrument {
	seen := make(map[Instrument]struct{})
	for _, tx := range f.Transactions {
		if tx.Type.IsTrade() {
			seen[Instrument{tx.Symbol, tx.Currency, tx.InstrumentType}] = struct{}{}
		}
	}
	for _, h := range f.Holdings {
		seen[Instrument{h.Symbol, h.Currency, h.InstrumentType}] = struct{}{}
	}
	return slices.SortedFunc(maps.Keys(seen), func(a, b Instrument) int {
		return cmp.Or(cmp.Compare(a.Symbol, b.Symbol), cmp.Compare(a.Currency, b.Currency))
	})
}

// Currencies returns every currency the feed books cash in.
func (f Feed) Currencies() []string {
	seen := make(map[string]struct{})
	for _, tx := range f.Transactions {
		seen[tx.Currency] = struct{}{}
	}
	for _, h := range f.Holdings {
		seen[h.Currency] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Window returns the measured window of the feed under opts.
func (f Feed) Window(opts Options) (Range, error) {
	from := opts.Inception
	if from.IsZero() {
		for _, tx := range f.Transactions {
			from = MinDate(from, tx.When)
		}
	}
	if from.IsZero() {
		return Range{}, fmt.Errorf("an inception date is required for a feed without transactions")
	}
	to := opts.End
	if to.IsZero() {
		to = MaxDate(Today(), from)
	}
	if to.Before(from) {
		return Range{}, fmt.Errorf("end %s is before inception %s", to, from)
	}
	return Range{From: from, To: to}, nil
}

// Analyze computes the performance of a single scope from its feed and the
// market data of the request. It is a pure sequential pass.
//
// Only scope-level impossibilities are errors, and they are always a
// *ScopeError; every other issue ends up in the result diagnostics.
func Analyze(scope string, feed Feed, market *MarketData, opts Options) (*PerformanceResult, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
	}
	if market == nil {
		market = NewMarketData(opts.ReportingCurrency)
	}
	if market.ReportingCurrency() != opts.ReportingCurrency {
		return nil, scopeErrorf(ErrInvalidOptions, scope, "market data in %s, report in %s", market.ReportingCurrency(), opts.ReportingCurrency)
	}
	if feed.IsEmpty() {
		return nil, scopeErrorf(ErrEmptyScope, scope, "no transaction and no holding")
	}
	for _, tx := range feed.Transactions {
		if err := tx.Validate(); err != nil {
			return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
		}
	}
	window, err := feed.Window(opts)
	if err != nil {
		return nil, &ScopeError{Kind: ErrInvalidOptions, Scope: scope, Err: err}
	}
	log := opts.Logger.With(zap.String("scope", scope))

	match := Match(feed.Transactions)
	tl := BuildTimeline(match, feed.Holdings, window.From)
	if len(tl.Keys) > 0 && !slices.ContainsFunc(tl.Keys, func(k PositionKey) bool { return market.HasPrices(k.Symbol, k.Currency) }) {
		return nil, scopeErrorf(ErrNoPriceData, scope, "none of %d position(s) has a price", len(tl.Keys))
	}
	cash := ReplayCash(match, tl, market, opts.FallbackFXRate)

	res := &PerformanceResult{
		Scope:             scope,
		ReportingCurrency: opts.ReportingCurrency,
		Mode:              opts.Mode,
		Window:            window,
		Closed:            match.Closed,
		Open:              match.Open,
		Incomplete:        match.Incomplete,
		Synthetic:         tl.Synthetic,
		Flows:             cash.Flows,
	}
	diag := &res.Diagnostics
	diag.SyntheticPositions = len(tl.Synthetic)
	diag.UnmatchedTrades = len(match.Incomplete)
	for _, it := range match.Incomplete {
		diag.warnf(WarnUnmatchedExit, it.On, it.Key.Symbol, "%s of %s %s could not be matched", it.Unmatched, it.Quantity, it.Key)
	}
	for _, w := range tl.warnings {
		diag.warn(w)
	}
	diag.merge(cash.Diagnostics)

	res.Series = buildSeries(window, opts.Mode, tl, cash, market, opts.FallbackFXRate, diag)
	v := newValuer(market, opts.FallbackFXRate, diag)
	for _, t := range match.Closed {
		res.RealizedPnL += t.RealizedPnL.AsFloat() * v.rate(t.Key.Currency, t.Closed)
	}
	res.UnrealizedPnL = v.unrealized(tl, window.To)

	res.Periods = Returns(opts.Mode, res.Series, opts.Epsilon, diag)
	res.CumulativeReturn = Cumulative(res.Periods)
	res.Reliable = diag.Reliable()

	log.Debug("analyzed",
		zap.Stringer("window", window),
		zap.Int("keys", len(tl.Keys)),
		zap.Int("synthetic", len(tl.Synthetic)),
		zap.Int("incomplete", len(match.Incomplete)),
		zap.Float64("cumulative", res.CumulativeReturn),
		zap.Bool("reliable", res.Reliable),
	)
	return res, nil
}

// valuationDates returns the end of each period of the mode in the window:
// month ends for Modified Dietz and every day for the daily time-weighted
// return, always including the window end.
func valuationDates(window Range, mode Mode) []Date {
	var dates []Date
	for p := range window.Periods(mode.Period()) {
		dates = append(dates, p.To)
	}
	return dates
}

// buildSeries values the scope over the window. The base is the value the
// day before the window, where seeded synthetic holdings count at cost.
func buildSeries(window Range, mode Mode, tl *Timeline, cash *CashReplay, market *MarketData, fallbackFX float64, diag *Diagnostics) Series {
	s := Series{Window: window}
	before := window.From.Add(-1)

	var inWindow []ExternalFlow
	for _, f := range cash.Flows {
		if f.On.Before(window.From) {
			if f.Kind == FlowSeed {
				s.Base += f.Amount
			}
			continue
		}
		inWindow = append(inWindow, f)
	}
	s.Flows = netFlows(inWindow)

	s.Base += ComputeNAV([]Date{before}, tl, cash, market, fallbackFX, diag, cash.IsSeeded)[0].Total
	s.Points = ComputeNAV(valuationDates(window, mode), tl, cash, market, fallbackFX, diag, nil)
	return s
}

func (r Range) String() string { return r.From.String() + ".." + r.To.String() }
