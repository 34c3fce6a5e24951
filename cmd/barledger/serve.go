package main

import (
	"context"
	"flag"

	"BarLedger/internal/analysis"
	"BarLedger/internal/app"
	"BarLedger/internal/logger"
	"BarLedger/internal/notifier"
	"BarLedger/internal/scheduler"

	"github.com/google/subcommands"
)

type serveCmd struct {
	runOnStart bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the daily ingest on its cron schedule" }
func (*serveCmd) Usage() string {
	return `barledger serve [-run-on-start]

  Ingests the watchlist on schedule.daily_cron and, when Telegram is
  configured, reports failed runs and answers /context and /ingest.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.runOnStart, "run-on-start", false, "Ingest the watchlist once right after start.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, st, err := setup()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer st.Close()
	log := logger.Component("serve")

	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Warn("telegram not configured, alerts disabled")
	}

	sched := scheduler.NewScheduler(ctx, app.NewBatch(ctx, cfg, st, app.IngestOptions(cfg)), sender, cfg.Watchlist, cfg.Ingest.HistoryDays)
	names, err := app.NewRegistry(ctx, cfg, 1)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	sched.Contexts = &analysis.Builder{Store: st, Names: names}
	if err := sched.Register(cfg.Schedule.DailyCron); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
	}
	if c.runOnStart {
		go sched.RunNow()
	}

	log.WithField("cron", cfg.Schedule.DailyCron).Info("BarLedger is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	return subcommands.ExitSuccess
}
