// Package cmd implements the CLI application to analyze performance.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/performance"
	"github.com/google/subcommands"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Commands are the subcommands a main package registers.
var Commands = []subcommands.Command{
	&analyzeCmd{},
	&accountsCmd{},
	&topicCmd{},
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "", "Path to the YAML configuration file")
var verbose = flag.Bool("v", false, "Log provider activity to stderr")

// stdout is where commands write their report.
var stdout io.Writer = os.Stdout

// newLogger returns a console logger on stderr: warnings only unless
// verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// DecodeFeed reads a feed file, "-" being the standard input.
func DecodeFeed(name string) (performance.Feed, error) {
	if name == "" || name == "-" {
		return performance.DecodeFeed(os.Stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return performance.Feed{}, err
	}
	defer f.Close()
	return performance.DecodeFeed(f)
}

// printMarkdown renders md for the terminal, or as is when rendering fails.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(stdout, out)
			return
		}
	}
	fmt.Fprint(stdout, md)
}
