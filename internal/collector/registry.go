package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"BarLedger/internal/logger"
	"BarLedger/internal/model"

	"github.com/sirupsen/logrus"
)

// Failure records why one provider did not answer.
type Failure struct {
	Provider string
	Kind     Kind
	Err      error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s(%s): %v", f.Provider, f.Kind, f.Err)
}

// AggregateError is returned when no provider produced a usable result.
type AggregateError struct {
	Op       string
	Code     string
	Failures []Failure
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s %s: no provider available", e.Op, e.Code)
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s %s: all providers failed: %s", e.Op, e.Code, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrFetchFailed) match an aggregate failure.
func (e *AggregateError) Is(target error) bool { return target == ErrFetchFailed }

// FetchResult is a successful daily fetch with the failures that preceded it.
type FetchResult struct {
	Bars     []model.DailyBar
	Source   string
	Failures []Failure
}

// Registry tries providers in ascending priority order until one succeeds.
// The order is fixed when the registry is built.
type Registry struct {
	fetchers []Fetcher
	log      *logrus.Entry
}

var errEmpty = errors.New("empty result")

// NewRegistry keeps the available fetchers and orders them by priority.
// Ties keep their argument order.
func NewRegistry(log *logrus.Entry, fetchers ...Fetcher) *Registry {
	if log == nil {
		log = logger.Component("registry")
	}
	avail := make([]Fetcher, 0, len(fetchers))
	for _, f := range fetchers {
		if f == nil {
			continue
		}
		if !f.Available() {
			log.WithField("provider", f.Name()).Info("provider not configured, skipped")
			continue
		}
		avail = append(avail, f)
	}
	sort.SliceStable(avail, func(i, j int) bool { return avail[i].Priority() < avail[j].Priority() })
	return &Registry{fetchers: avail, log: log}
}

// Fetchers returns the providers in the order they are tried.
func (r *Registry) Fetchers() []Fetcher {
	out := make([]Fetcher, len(r.fetchers))
	copy(out, r.fetchers)
	return out
}

// FetchDaily returns the first non-empty bar set.
func (r *Registry) FetchDaily(ctx context.Context, code string, start, end time.Time) (*FetchResult, error) {
	bars, source, failures, err := tryEach(ctx, r, "daily", code, r.fetchers,
		func(f Fetcher) ([]model.DailyBar, error) { return f.FetchDaily(ctx, code, start, end) },
		func(b []model.DailyBar) bool { return len(b) == 0 })
	if err != nil {
		return nil, err
	}
	for i := range bars {
		bars[i].DataSource = source
	}
	return &FetchResult{Bars: bars, Source: source, Failures: failures}, nil
}

// FetchName returns the first resolved security name.
func (r *Registry) FetchName(ctx context.Context, code string) (string, error) {
	name, _, _, err := tryEach(ctx, r, "name", code, r.fetchers,
		func(f Fetcher) (string, error) { return f.FetchName(ctx, code) },
		func(s string) bool { return s == "" })
	return name, err
}

// FetchList returns the first non-empty security list.
func (r *Registry) FetchList(ctx context.Context) ([]model.SecurityInfo, error) {
	list, _, _, err := tryEach(ctx, r, "list", "", r.fetchers,
		func(f Fetcher) ([]model.SecurityInfo, error) { return f.FetchList(ctx) },
		func(l []model.SecurityInfo) bool { return len(l) == 0 })
	return list, err
}

// FetchRealtimeQuote returns the first snapshot.
func (r *Registry) FetchRealtimeQuote(ctx context.Context, code string) (*model.Quote, error) {
	q, _, _, err := tryEach(ctx, r, "quote", code, r.fetchers,
		func(f Fetcher) (*model.Quote, error) { return f.FetchRealtimeQuote(ctx, code) },
		func(q *model.Quote) bool { return q == nil })
	return q, err
}

// TradeStatus asks the calendar-capable providers in priority order.
func (r *Registry) TradeStatus(ctx context.Context) (model.TradeStatus, error) {
	var cals []Fetcher
	for _, f := range r.fetchers {
		if _, ok := f.(CalendarFetcher); ok {
			cals = append(cals, f)
		}
	}
	st, _, _, err := tryEach(ctx, r, "trade_status", "", cals,
		func(f Fetcher) (model.TradeStatus, error) { return f.(CalendarFetcher).TradeStatus(ctx) },
		func(s model.TradeStatus) bool { return s.LatestTradeDate.IsZero() })
	return st, err
}

// HasCalendar reports whether any provider publishes a trading calendar.
func (r *Registry) HasCalendar() bool {
	for _, f := range r.fetchers {
		if _, ok := f.(CalendarFetcher); ok {
			return true
		}
	}
	return false
}

// tryEach runs fn against each fetcher in order. Providers answering
// ErrUnsupported are skipped without counting as failures.
func tryEach[T any](ctx context.Context, r *Registry, op, code string, fetchers []Fetcher, fn func(Fetcher) (T, error), empty func(T) bool) (T, string, []Failure, error) {
	var zero T
	var failures []Failure
	for _, f := range fetchers {
		if err := ctx.Err(); err != nil {
			return zero, "", failures, err
		}
		log := r.log.WithFields(logrus.Fields{"provider": f.Name(), "op": op, "code": code})
		v, err := fn(f)
		if errors.Is(err, ErrUnsupported) {
			log.Debug("operation unsupported, skipping provider")
			continue
		}
		if err == nil && empty(v) {
			err = &Error{Provider: f.Name(), Op: op, Kind: KindFetchFailed, Err: errEmpty}
		}
		if err != nil {
			fl := Failure{Provider: f.Name(), Kind: Classify(err), Err: err}
			failures = append(failures, fl)
			log.WithError(err).WithField("kind", fl.Kind.String()).Warn("provider failed, trying next")
			continue
		}
		if len(failures) > 0 {
			log.WithField("failed_before", len(failures)).Info("served by fallback provider")
		} else {
			log.Debug("served by primary provider")
		}
		return v, f.Name(), failures, nil
	}
	return zero, "", failures, &AggregateError{Op: op, Code: code, Failures: failures}
}
