// Package app wires configuration into providers, registries and ingesters.
package app

import (
	"context"
	"fmt"

	"BarLedger/internal/collector"
	"BarLedger/internal/config"
	"BarLedger/internal/ingest"
	"BarLedger/internal/logger"
	"BarLedger/internal/quota"
	"BarLedger/internal/retry"
	"BarLedger/internal/store"
)

// NewRegistry builds a fresh set of provider adapters. Quota ceilings are
// divided by workers, since every worker gets its own registry while the
// credential's limit is shared.
func NewRegistry(ctx context.Context, cfg *config.Config, workers int) (*collector.Registry, error) {
	log := logger.Component("collector")
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Multiplier:  cfg.Retry.Multiplier,
		MinDelay:    cfg.Retry.MinDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	common := func(priority, perMinute int) collector.Common {
		return collector.Common{
			Priority:  priority,
			RateLimit: quota.Split(perMinute, workers),
			Retry:     policy,
			Proxy:     cfg.Proxy,
			Log:       log,
		}
	}
	p := cfg.Providers

	var fetchers []collector.Fetcher
	if p.Tushare.Token != "" {
		verify := p.Tushare.Verify == nil || *p.Tushare.Verify
		fetchers = append(fetchers, collector.NewTushareFetcher(ctx, collector.TushareOptions{
			Common:  common(p.Tushare.Priority, p.Tushare.RateLimitPerMinute),
			Token:   p.Tushare.Token,
			BaseURL: p.Tushare.BaseURL,
			Verify:   verify,
			Basic:   p.BasicSource == "tushare",
		}))
	}
	if cfg.EastMoneyEnabled() {
		rps := p.EastMoney.RequestsPerSecond
		if workers > 1 {
			rps /= float64(workers)
		}
		fetchers = append(fetchers, collector.NewEastMoneyFetcher(collector.EastMoneyOptions{
			Common:            common(p.EastMoney.Priority, p.EastMoney.RateLimitPerMinute),
			KlineURL:          p.EastMoney.KlineURL,
			QuoteURL:          p.EastMoney.QuoteURL,
			RequestsPerSecond: rps,
			Basic:             p.BasicSource == "eastmoney",
		}))
	}
	if cfg.YahooEnabled() {
		fetchers = append(fetchers, collector.NewYahooFetcher(collector.YahooOptions{
			Common:  common(p.Yahoo.Priority, p.Yahoo.RateLimitPerMinute),
			BaseURL: p.Yahoo.BaseURL,
		}))
	}

	reg := collector.NewRegistry(log, fetchers...)
	if len(reg.Fetchers()) == 0 {
		return nil, fmt.Errorf("no data provider available")
	}
	return reg, nil
}

// IngestOptions maps the ingest section of the configuration.
func IngestOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		LookbackDays: cfg.Ingest.LookbackDays,
		RequireBasic: cfg.Ingest.RequireBasic,
	}
}

// NewBatch returns a batch runner whose workers each own a registry. Quotas
// are split by the number of workers a run actually starts.
func NewBatch(ctx context.Context, cfg *config.Config, st store.Store, opts ingest.Options) *ingest.Batch {
	return &ingest.Batch{
		Workers: cfg.Ingest.Workers,
		NewIngester: func(_, workers int) (*ingest.Ingester, error) {
			reg, err := NewRegistry(ctx, cfg, workers)
			if err != nil {
				return nil, err
			}
			return ingest.New(reg, st, opts), nil
		},
	}
}
