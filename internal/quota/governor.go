// Package quota enforces per-credential call ceilings with a fixed one-minute window.
package quota

import (
	"context"
	"sync"
	"time"

	"BarLedger/internal/logger"

	"github.com/sirupsen/logrus"
)

const (
	DefaultWindow = time.Minute
	DefaultBuffer = time.Second
)

// Governor counts calls in a fixed window and blocks the caller that would
// exceed the ceiling until the window rolls over.
type Governor struct {
	provider string
	limit    int
	window   time.Duration
	buffer   time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	log      *logrus.Entry

	mu          sync.Mutex
	windowStart time.Time
	callCount   int
}

// Option customises a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleep replaces the blocking sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// WithWindow overrides the window length.
func WithWindow(d time.Duration) Option {
	return func(g *Governor) { g.window = d }
}

// WithBuffer overrides the safety margin added to every quota sleep.
func WithBuffer(d time.Duration) Option {
	return func(g *Governor) { g.buffer = d }
}

// WithLogger sets the log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(g *Governor) { g.log = l }
}

// New returns a governor allowing limitPerMinute calls per window.
// A non-positive limit disables it.
func New(provider string, limitPerMinute int, opts ...Option) *Governor {
	g := &Governor{
		provider: provider,
		limit:    limitPerMinute,
		window:   DefaultWindow,
		buffer:   DefaultBuffer,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = logger.Component("quota")
	}
	g.log = g.log.WithField("provider", provider)
	return g
}

// Acquire records one call, sleeping first when the ceiling is reached.
// The lock is held across the sleep so concurrent callers queue behind it.
func (g *Governor) Acquire(ctx context.Context) error {
	if g == nil || g.limit <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.windowStart.IsZero() {
		g.windowStart = now
	}
	elapsed := now.Sub(g.windowStart)
	if elapsed >= g.window {
		g.windowStart = now
		g.callCount = 0
		elapsed = 0
	}

	if g.callCount >= g.limit {
		wait := g.window - elapsed
		if wait < 0 {
			wait = 0
		}
		wait += g.buffer
		g.log.WithFields(logrus.Fields{
			"calls": g.callCount,
			"limit": g.limit,
			"wait":  wait,
		}).Warn("quota reached, waiting for next window")
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		g.windowStart = g.now()
		g.callCount = 0
	}

	g.callCount++
	return nil
}

// CallCount returns the number of calls recorded in the current window.
func (g *Governor) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCount
}

// Limit returns the configured ceiling.
func (g *Governor) Limit() int { return g.limit }

// Split divides one credential's ceiling across workers. Each share is at
// least 1; a disabled ceiling stays disabled.
func Split(limit, workers int) int {
	if limit <= 0 || workers <= 1 {
		return limit
	}
	share := limit / workers
	if share < 1 {
		share = 1
	}
	return share
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
