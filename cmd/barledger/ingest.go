package main

import (
	"context"
	"flag"
	"fmt"

	"BarLedger/internal/app"
	"BarLedger/internal/model"

	"github.com/google/subcommands"
)

type ingestCmd struct {
	start string
	end   string
	force bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "fetch daily bars and store them" }
func (*ingestCmd) Usage() string {
	return `barledger ingest [-start <date>] [-end <date>] [-force] [code ...]

  Fetches daily bars for the given codes (or the configured watchlist) from
  the first provider that answers, computes moving averages and upserts them
  into the store. Codes whose last day is already stored are skipped unless
  -force is set.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "First day (YYYY-MM-DD). Defaults to history_days before -end.")
	f.StringVar(&c.end, "end", "", "Last day (YYYY-MM-DD). Defaults to today.")
	f.BoolVar(&c.force, "force", false, "Refetch even when the range is already stored.")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, st, err := setup()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	codes := f.Args()
	if len(codes) == 0 {
		codes = cfg.Watchlist
	}
	if len(codes) == 0 {
		fail("no codes given and watchlist is empty")
		return subcommands.ExitUsageError
	}
	start, end, err := dateRange(c.start, c.end, cfg.Ingest.HistoryDays)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}

	opts := app.IngestOptions(cfg)
	opts.Force = c.force
	batch := app.NewBatch(ctx, cfg, st, opts)
	report, err := batch.Run(ctx, codes, start, end)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	for _, r := range report.Succeeded {
		fmt.Printf("%s\t%s..%s\t%s\tinserted=%d updated=%d\n", r.Code,
			r.Start.Format(model.DateLayout), r.End.Format(model.DateLayout), r.Source, r.Inserted, r.Updated)
	}
	for _, code := range report.Skipped {
		fmt.Printf("%s\tskipped (up to date)\n", code)
	}
	for _, fl := range report.Failed {
		fmt.Printf("%s\tFAILED: %s\n", fl.Code, fl.Reason)
	}
	if len(report.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
