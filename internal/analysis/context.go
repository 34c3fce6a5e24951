// Package analysis derives day-over-day context from stored bars.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"BarLedger/internal/logger"
	"BarLedger/internal/model"
	"BarLedger/internal/store"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// ErrNoData means the store holds no bars for the code.
var ErrNoData = errors.New("no stored bars")

// ClassifyRegime labels the moving-average alignment. Checks run in order
// and the first match wins; missing averages compare as zero.
func ClassifyRegime(b *model.DailyBar) model.Regime {
	c := b.Close.ValueOrZero()
	ma5 := b.MA5.ValueOrZero()
	ma10 := b.MA10.ValueOrZero()
	ma20 := b.MA20.ValueOrZero()

	switch {
	case c > ma5 && ma5 > ma10 && ma10 > ma20 && ma20 > 0:
		return model.RegimeBullish
	case c < ma5 && ma5 < ma10 && ma10 < ma20 && ma20 > 0:
		return model.RegimeBearish
	case c > ma5 && ma5 > ma10:
		return model.RegimeImproving
	case c < ma5 && ma5 < ma10:
		return model.RegimeWeakening
	default:
		return model.RegimeConsolidating
	}
}

// Build compares today with yesterday. Without yesterday the context carries
// only today's bar.
func Build(today, yesterday *model.DailyBar) *model.AnalysisContext {
	ac := &model.AnalysisContext{
		Code:  today.Code,
		Date:  today.Date.Format(model.DateLayout),
		Today: today,
	}
	if yesterday == nil {
		return ac
	}
	ac.Yesterday = yesterday

	if yv := yesterday.Volume.ValueOrZero(); yv > 0 && today.Volume.Valid {
		ac.VolumeChangeRatio = null.FloatFrom(round2(today.Volume.Float64 / yv))
	}
	if yc := yesterday.Close.ValueOrZero(); yc > 0 && today.Close.Valid {
		ac.PriceChangeRatio = null.FloatFrom(round2((today.Close.Float64 - yc) / yc * 100))
	}
	ac.Regime = ClassifyRegime(today)
	return ac
}

// NameResolver looks up the display name of a security.
type NameResolver interface {
	FetchName(ctx context.Context, code string) (string, error)
}

// Builder reads the two newest bars of a code from the store. When Names is
// set the security name is resolved too; a failed lookup leaves it empty.
type Builder struct {
	Store store.Store
	Names NameResolver
}

// Context builds the analysis context for code.
func (b *Builder) Context(ctx context.Context, code string) (*model.AnalysisContext, error) {
	bars, err := b.Store.Latest(ctx, code, 2)
	if err != nil {
		return nil, fmt.Errorf("load latest bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", code, ErrNoData)
	}
	var yesterday *model.DailyBar
	if len(bars) > 1 {
		yesterday = &bars[1]
	}
	ac := Build(&bars[0], yesterday)
	if b.Names != nil {
		name, err := b.Names.FetchName(ctx, code)
		if err != nil {
			logger.Component("analysis").WithError(err).WithField("code", code).Warn("name lookup failed")
		}
		ac.Name = name
	}
	return ac, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
