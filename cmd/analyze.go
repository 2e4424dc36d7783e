package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/performance"
	"github.com/etnz/performance/renderer"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

// analyzeCmd holds the flags for the 'analyze' subcommand.
type analyzeCmd struct {
	feedFile   string
	account    string
	currency   string
	mode       string
	inception  string
	end        string
	redis      string
	prices     string
	jsonOut    bool
	raw        bool
	skipTrades bool
	skipFlows  bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "compute the realized performance of a feed" }
func (*analyzeCmd) Usage() string {
	return `perf analyze [-f <feed>] [-account <id>] [-c <currency>] [-mode dietz|twr] [-inception <date>] [-end <date>]

  Reads a JSONL feed of transactions and holdings, fetches the prices and
  rates it needs, and reports P&L, monthly returns and diagnostics.

  Flags override the configuration file.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.feedFile, "f", "-", "Feed file (JSONL), - for standard input")
	f.StringVar(&c.account, "account", "", "Analyze a single account instead of the whole feed")
	f.StringVar(&c.currency, "c", "", "Reporting currency")
	f.StringVar(&c.mode, "mode", "", "Return method: dietz (monthly Modified Dietz) or twr (daily time-weighted)")
	f.StringVar(&c.inception, "inception", "", "First day of the window. See the user manual for supported date formats.")
	f.StringVar(&c.end, "end", "", "Last day of the window, defaults to today")
	f.StringVar(&c.redis, "redis", "", "Address of a redis server caching price series")
	f.StringVar(&c.prices, "prices", "", "JSONL file of static closes and rates")
	f.BoolVar(&c.jsonOut, "json", false, "Print the result as JSON")
	f.BoolVar(&c.raw, "raw", false, "Print plain markdown instead of rendering it for the terminal")
	f.BoolVar(&c.skipTrades, "skip-trades", false, "Omit closed trades and open lots")
	f.BoolVar(&c.skipFlows, "skip-flows", false, "Omit external flows")
}

// config loads the configuration file and applies the flags over it.
func (c *analyzeCmd) config() (*performance.Config, error) {
	cfg, err := performance.LoadConfig(*configFile)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ReportingCurrency, c.currency)
	set(&cfg.Mode, c.mode)
	set(&cfg.Inception, c.inception)
	set(&cfg.End, c.end)
	set(&cfg.Providers.Redis, c.redis)
	set(&cfg.Providers.Prices, c.prices)
	return cfg, nil
}

func (c *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	opts, err := cfg.Options()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in options: %v\n", err)
		return subcommands.ExitUsageError
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() { _ = logger.Sync() }()
	opts.Logger = logger

	feed, err := DecodeFeed(c.feedFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding feed %q: %v\n", c.feedFile, err)
		return subcommands.ExitFailure
	}
	scope := "portfolio"
	if c.account != "" {
		scope = c.account
		feed = feed.ForAccount(c.account)
	}

	p, err := newProviders(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating providers: %v\n", err)
		return subcommands.ExitFailure
	}
	defer p.close()
	logger.Debug("providers", zap.Strings("chain", p.names))

	engine := &performance.Engine{Prices: p.prices, FX: p.fx, Options: opts}
	res, err := engine.Run(ctx, scope, feed)
	if err != nil {
		var se *performance.ScopeError
		if errors.As(err, &se) && se.Kind == performance.ErrEmptyScope {
			fmt.Fprintf(os.Stderr, "Nothing to analyze: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Error analyzing %q: %v\n", scope, err)
		return subcommands.ExitFailure
	}

	if c.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	md := renderer.PerformanceMarkdown(res, renderer.Options{SkipTrades: c.skipTrades, SkipFlows: c.skipFlows})
	if c.raw {
		fmt.Fprint(stdout, md)
	} else {
		printMarkdown(md)
	}
	return subcommands.ExitSuccess
}
