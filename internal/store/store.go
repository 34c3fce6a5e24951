// Package store persists daily bars with idempotent, partial-merge upserts.
package store

import (
	"context"
	"errors"
	"time"

	"BarLedger/internal/model"
)

// ErrPersistence wraps every failed write. The batch it belongs to was rolled back.
var ErrPersistence = errors.New("persistence failed")

// UpsertResult counts what one batch did.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Store is the bar repository.
type Store interface {
	// Upsert writes bars for code in one transaction. A present incoming value
	// overwrites the stored one; an absent value never erases it.
	Upsert(ctx context.Context, code string, bars []model.DailyBar, source string) (UpsertResult, error)
	// Exists reports whether the (code, date) row is stored, and with
	// requireBasic whether it also carries fundamentals.
	Exists(ctx context.Context, code string, date time.Time, requireBasic bool) (bool, error)
	// Latest returns up to limit newest bars, newest first.
	Latest(ctx context.Context, code string, limit int) ([]model.DailyBar, error)
	// Range returns bars within [start, end], oldest first.
	Range(ctx context.Context, code string, start, end time.Time) ([]model.DailyBar, error)
	Close() error
}
