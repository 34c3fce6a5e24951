package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"BarLedger/internal/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CodeFailure is one code that could not be ingested.
type CodeFailure struct {
	Code   string
	Reason string
}

// BatchReport summarises a multi-code run.
type BatchReport struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Succeeded []*Report
	Skipped   []string
	Failed    []CodeFailure
}

// Batch ingests many codes with a fixed number of workers. Every worker owns
// its own Ingester, so provider instances and their quota counters are never
// shared between goroutines.
type Batch struct {
	// NewIngester builds the ingester of one worker. workers is the number
	// actually started, which is Workers capped by the number of codes.
	NewIngester func(worker, workers int) (*Ingester, error)
	Workers     int
}

type result struct {
	code string
	rep  *Report
	err  error
}

// Run ingests codes over [start, end].
func (b *Batch) Run(ctx context.Context, codes []string, start, end time.Time) (*BatchReport, error) {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(codes) && len(codes) > 0 {
		workers = len(codes)
	}
	report := &BatchReport{RunID: uuid.New().String(), Started: time.Now()}
	log := logger.Component("batch").WithField("run_id", report.RunID)

	ingesters := make([]*Ingester, workers)
	for i := range ingesters {
		in, err := b.NewIngester(i, workers)
		if err != nil {
			return nil, fmt.Errorf("build worker %d: %w", i, err)
		}
		ingesters[i] = in
	}

	pending := make(chan string, len(codes))
	for _, c := range codes {
		pending <- c
	}
	close(pending)

	results := make(chan result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(in *Ingester) {
			defer wg.Done()
			for code := range pending {
				if ctx.Err() != nil {
					results <- result{code: code, err: ctx.Err()}
					continue
				}
				rep, err := in.Ingest(ctx, code, start, end)
				results <- result{code: code, rep: rep, err: err}
			}
		}(ingesters[i])
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		switch {
		case r.err != nil:
			report.Failed = append(report.Failed, CodeFailure{Code: r.code, Reason: r.err.Error()})
			log.WithError(r.err).WithField("code", r.code).Error("ingest failed")
		case r.rep.Skipped:
			report.Skipped = append(report.Skipped, r.code)
		default:
			report.Succeeded = append(report.Succeeded, r.rep)
		}
	}
	sort.Slice(report.Succeeded, func(i, j int) bool { return report.Succeeded[i].Code < report.Succeeded[j].Code })
	sort.Strings(report.Skipped)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Code < report.Failed[j].Code })
	report.Finished = time.Now()

	log.WithFields(logrus.Fields{
		"succeeded": len(report.Succeeded),
		"skipped":   len(report.Skipped),
		"failed":    len(report.Failed),
		"elapsed":   report.Finished.Sub(report.Started).Round(time.Millisecond),
	}).Info("batch done")
	return report, nil
}
