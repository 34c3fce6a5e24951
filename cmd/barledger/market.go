package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"BarLedger/internal/app"
	"BarLedger/internal/model"

	"github.com/google/subcommands"
)

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print a realtime quote snapshot as JSON" }
func (*quoteCmd) Usage() string {
	return `barledger quote <code>

  Asks each provider in priority order for a one-shot quote. Providers
  without a realtime endpoint are skipped.
`
}

func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fail("quote takes exactly one code")
		return subcommands.ExitUsageError
	}
	cfg, err := configure()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	reg, err := app.NewRegistry(ctx, cfg, 1)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	q, err := reg.FetchRealtimeQuote(ctx, f.Arg(0))
	if err != nil {
		fail("fetch quote: %v", err)
		return subcommands.ExitFailure
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(q); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type listCmd struct{}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "print the A-share security list" }
func (*listCmd) Usage() string {
	return `barledger list

  Prints code, name, market and industry of every listed A-share,
  tab separated, from the first provider that serves the list.
`
}

func (*listCmd) SetFlags(*flag.FlagSet) {}

func (*listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := configure()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	reg, err := app.NewRegistry(ctx, cfg, 1)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	list, err := reg.FetchList(ctx)
	if err != nil {
		fail("fetch list: %v", err)
		return subcommands.ExitFailure
	}
	if err := writeSecurities(os.Stdout, list); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func writeSecurities(w io.Writer, list []model.SecurityInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tMARKET\tINDUSTRY")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Code, s.Name, s.Market, s.Industry)
	}
	return tw.Flush()
}
