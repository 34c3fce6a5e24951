package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"BarLedger/internal/export"
	"BarLedger/internal/model"

	"github.com/google/subcommands"
)

type exportCmd struct {
	format string
	out    string
	start  string
	end    string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write stored bars of a code to a file" }
func (*exportCmd) Usage() string {
	return `barledger export [-format csv|parquet|json] [-out <dir>] [-start <date>] [-end <date>] <code>
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "csv", "Output format: csv, parquet or json.")
	f.StringVar(&c.out, "out", "export", "Output directory.")
	f.StringVar(&c.start, "start", "", "First day (YYYY-MM-DD). Defaults to history_days before -end.")
	f.StringVar(&c.end, "end", "", "Last day (YYYY-MM-DD). Defaults to today.")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fail("export takes exactly one code")
		return subcommands.ExitUsageError
	}
	w := export.NewWriter(c.format)
	if w == nil {
		fail("unsupported format %q (use csv, parquet or json)", c.format)
		return subcommands.ExitUsageError
	}
	cfg, st, err := setup()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	start, end, err := dateRange(c.start, c.end, cfg.Ingest.HistoryDays)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}
	code := f.Arg(0)
	bars, err := st.Range(ctx, code, start, end)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if len(bars) == 0 {
		fail("no stored bars for %s in %s..%s", code, start.Format(model.DateLayout), end.Format(model.DateLayout))
		return subcommands.ExitFailure
	}

	if err := ensureDir(c.out); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	name := fmt.Sprintf("%s_%s_%s.%s", code, start.Format("20060102"), end.Format("20060102"), w.Extension())
	path := filepath.Join(c.out, name)
	if err := w.Write(bars, path); err != nil {
		fail("write %s: %v", path, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d bars written to %s\n", len(bars), path)
	return subcommands.ExitSuccess
}
