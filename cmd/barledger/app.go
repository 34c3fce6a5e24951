package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"BarLedger/internal/config"
	"BarLedger/internal/logger"
	"BarLedger/internal/model"
	"BarLedger/internal/store"
)

var configPath = flag.String("config", defaultConfigPath(), "Path to the YAML configuration file")

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// configure loads and validates the configuration and configures logging.
func configure() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	l := cfg.Logging
	if err := logger.Configure(l.Level, l.Format, l.Output, l.MaxAge); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return cfg, nil
}

// setup is configure plus opening the bar store. The caller closes the store.
func setup() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := configure()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

// dateRange parses optional YYYY-MM-DD bounds. end defaults to today and
// start to historyDays before end.
func dateRange(start, end string, historyDays int) (time.Time, time.Time, error) {
	e := model.Day(time.Now())
	if end != "" {
		d, err := model.ParseDay(end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse end date: %w", err)
		}
		e = d
	}
	s := e.AddDate(0, 0, -historyDays)
	if start != "" {
		d, err := model.ParseDay(start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse start date: %w", err)
		}
		s = d
	}
	if s.After(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is after end %s", s.Format(model.DateLayout), e.Format(model.DateLayout))
	}
	return s, e, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(os.Stderr, msg)
}
