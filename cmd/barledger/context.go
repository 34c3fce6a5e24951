package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"

	"BarLedger/internal/analysis"
	"BarLedger/internal/app"
	"BarLedger/internal/logger"

	"github.com/google/subcommands"
)

type contextCmd struct{}

func (*contextCmd) Name() string     { return "context" }
func (*contextCmd) Synopsis() string { return "print the analysis context of a code as JSON" }
func (*contextCmd) Usage() string {
	return `barledger context <code>

  Reads the two newest stored bars of the code and prints the day-over-day
  volume and price ratios together with the moving average regime.
`
}

func (*contextCmd) SetFlags(*flag.FlagSet) {}

func (*contextCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fail("context takes exactly one code")
		return subcommands.ExitUsageError
	}
	cfg, st, err := setup()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	b := &analysis.Builder{Store: st}
	if reg, err := app.NewRegistry(ctx, cfg, 1); err != nil {
		logger.Component("context").WithError(err).Warn("no provider for name lookup")
	} else {
		b.Names = reg
	}
	ac, err := b.Context(ctx, f.Arg(0))
	if errors.Is(err, analysis.ErrNoData) {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err != nil {
		fail("build context: %v", err)
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ac.Map()); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
