// Package ingest drives fetch, enrich and persist for one or many codes.
package ingest

import (
	"context"
	"fmt"
	"time"

	"BarLedger/internal/calculator"
	"BarLedger/internal/collector"
	"BarLedger/internal/logger"
	"BarLedger/internal/model"
	"BarLedger/internal/store"

	"github.com/sirupsen/logrus"
)

// Options tunes a single-code ingest.
type Options struct {
	// LookbackDays of extra history fetched so the moving averages of the
	// first requested day are complete. It is not stored.
	LookbackDays int
	// RequireBasic makes a row without fundamentals count as incomplete.
	RequireBasic bool
	// Force skips the completeness check and always fetches.
	Force bool
}

// Report describes one code's ingest.
type Report struct {
	Code     string
	Start    time.Time
	End      time.Time
	Source   string
	Skipped  bool
	Fetched  int
	Inserted int
	Updated  int
	Failures []collector.Failure
}

// Ingester moves bars of one code from the providers into the store.
type Ingester struct {
	registry *collector.Registry
	store    store.Store
	opts     Options
	log      *logrus.Entry
}

// Registry returns the providers the ingester fetches from.
func (in *Ingester) Registry() *collector.Registry { return in.registry }

// New returns an Ingester.
func New(reg *collector.Registry, st store.Store, opts Options) *Ingester {
	return &Ingester{
		registry: reg,
		store:    st,
		opts:     opts,
		log:      logger.Component("ingest"),
	}
}

// Ingest brings [start, end] of code up to date. When the stored range is
// already complete nothing is fetched; otherwise only missing or incomplete
// rows are written, so a rerun after a partial failure resumes where it
// stopped.
func (in *Ingester) Ingest(ctx context.Context, code string, start, end time.Time) (*Report, error) {
	start, end = model.Day(start), model.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("ingest %s: end %s before start %s", code, end.Format(model.DateLayout), start.Format(model.DateLayout))
	}
	log := in.log.WithField("code", code)

	if in.registry.HasCalendar() {
		st, err := in.registry.TradeStatus(ctx)
		if err != nil {
			log.WithError(err).Warn("trade calendar unavailable, using requested end date")
		} else if st.LatestTradeDate.Before(end) {
			end = st.LatestTradeDate
		}
	}
	rep := &Report{Code: code, Start: start, End: end}
	if end.Before(start) {
		log.Info("no trading day in range, skipping")
		rep.Skipped = true
		return rep, nil
	}

	var complete map[time.Time]bool
	if !in.opts.Force {
		var done bool
		var err error
		complete, done, err = in.checkpoint(ctx, code, start, end)
		if err != nil {
			return nil, err
		}
		if done {
			log.WithField("date", end.Format(model.DateLayout)).Info("already up to date, skipping fetch")
			rep.Skipped = true
			return rep, nil
		}
	}

	from := start.AddDate(0, 0, -in.opts.LookbackDays)
	res, err := in.registry.FetchDaily(ctx, code, from, end)
	if err != nil {
		return nil, err
	}
	rep.Source = res.Source
	rep.Failures = res.Failures

	calculator.Enrich(res.Bars)
	rows := make([]model.DailyBar, 0, len(res.Bars))
	for _, b := range res.Bars {
		if b.Date.Before(start) || b.Date.After(end) || complete[model.Day(b.Date)] {
			continue
		}
		rows = append(rows, b)
	}
	rep.Fetched = len(rows)
	if len(rows) == 0 {
		log.Info("fetched range holds no new or incomplete rows")
		return rep, nil
	}

	up, err := in.store.Upsert(ctx, code, rows, res.Source)
	if err != nil {
		return nil, err
	}
	rep.Inserted, rep.Updated = up.Inserted, up.Updated

	log.WithFields(logrus.Fields{
		"source":   rep.Source,
		"fetched":  rep.Fetched,
		"inserted": rep.Inserted,
		"updated":  rep.Updated,
		"failover": len(rep.Failures),
	}).Info("ingest complete")
	return rep, nil
}

// checkpoint returns the stored days of [start, end] that need no refetch and
// whether the whole range can be skipped. The range is done when the last
// day is complete, the first weekday on or after start is stored, and no
// stored day in between is incomplete.
func (in *Ingester) checkpoint(ctx context.Context, code string, start, end time.Time) (map[time.Time]bool, bool, error) {
	last, err := in.store.Exists(ctx, code, end, in.opts.RequireBasic)
	if err != nil {
		return nil, false, err
	}
	stored, err := in.store.Range(ctx, code, start, end)
	if err != nil {
		return nil, false, err
	}
	complete := make(map[time.Time]bool, len(stored))
	partial := false
	for i := range stored {
		b := &stored[i]
		if in.opts.RequireBasic && !b.HasBasic() {
			partial = true
			continue
		}
		complete[model.Day(b.Date)] = true
	}
	first := firstWeekday(start)
	done := last && !partial && (first.After(end) || complete[first])
	return complete, done, nil
}

func firstWeekday(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
