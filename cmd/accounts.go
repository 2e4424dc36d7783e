package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/performance"
	"github.com/google/subcommands"
)

type accountsCmd struct {
	feedFile string
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list the accounts of a feed" }
func (*accountsCmd) Usage() string {
	return `perf accounts [-f <feed>]

  Lists the account ids found in transactions and holdings, with their
  number of transactions, holdings, and first and last trade dates.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.feedFile, "f", "-", "Feed file (JSONL), - for standard input")
}

func (c *accountsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	feed, err := DecodeFeed(c.feedFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding feed %q: %v\n", c.feedFile, err)
		return subcommands.ExitFailure
	}
	for _, id := range feed.Accounts() {
		sub := feed.ForAccount(id)
		var first, last performance.Date
		for _, tx := range sub.Transactions {
			if first.IsZero() || tx.When.Before(first) {
				first = tx.When
			}
			if tx.When.After(last) {
				last = tx.When
			}
		}
		name := id
		if name == "" {
			name = "(none)"
		}
		if first.IsZero() {
			fmt.Fprintf(stdout, "%-12s %4d transactions %4d holdings\n", name, len(sub.Transactions), len(sub.Holdings))
			continue
		}
		fmt.Fprintf(stdout, "%-12s %4d transactions %4d holdings  %s..%s\n", name, len(sub.Transactions), len(sub.Holdings), first, last)
	}
	return subcommands.ExitSuccess
}
