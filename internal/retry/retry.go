// Package retry re-runs remote operations that fail transiently.
package retry

import (
	"context"
	"fmt"
	"time"

	"BarLedger/internal/logger"

	"github.com/sirupsen/logrus"
)

// Policy is a bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	Multiplier  time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is 3 attempts waiting 2s then 2s, capped at 30s.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Multiplier:  time.Second,
	MinDelay:    2 * time.Second,
	MaxDelay:    30 * time.Second,
}

// Delay returns the wait after the given failed attempt (1-based):
// Multiplier*2^(attempt-1) clamped to [MinDelay, MaxDelay].
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.MaxDelay
	if attempt <= 32 {
		d = p.Multiplier * time.Duration(int64(1)<<uint(attempt-1))
		if d <= 0 && p.Multiplier > 0 {
			d = p.MaxDelay
		}
	}
	if d < p.MinDelay {
		d = p.MinDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// ExhaustedError is returned when every attempt failed transiently.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d attempts failed: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Executor runs operations under a Policy.
type Executor struct {
	policy      Policy
	isTransient func(error) bool
	sleep       func(context.Context, time.Duration) error
	log         *logrus.Entry
}

// Option customises an Executor.
type Option func(*Executor)

// WithSleep replaces the blocking sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithLogger sets the log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Executor) { e.log = l }
}

// New returns an executor that retries errors for which isTransient is true.
func New(policy Policy, isTransient func(error) bool, opts ...Option) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	e := &Executor{
		policy:      policy,
		isTransient: isTransient,
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = logger.Component("retry")
	}
	return e
}

// Policy returns the executor's backoff policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs fn until it succeeds, fails non-transiently or the attempts run out.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if e.isTransient == nil || !e.isTransient(err) {
			return err
		}
		lastErr = err
		if attempt == e.policy.MaxAttempts {
			break
		}
		delay := e.policy.Delay(attempt)
		e.log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("transient failure, retrying")
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Op: op, Attempts: e.policy.MaxAttempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
