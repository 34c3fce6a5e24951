package model

import (
	"github.com/guregu/null/v6"
)

// AnalysisContext summarises the latest bar of a security against the one before it.
type AnalysisContext struct {
	Code      string
	Name      string // empty when unresolved
	Date      string
	Today     *DailyBar
	Yesterday *DailyBar

	VolumeChangeRatio null.Float
	PriceChangeRatio  null.Float
	Regime            Regime // empty when there is no previous bar
}

// Map flattens the context into the field-name mapping consumed downstream.
func (c *AnalysisContext) Map() map[string]any {
	m := map[string]any{
		"code":  c.Code,
		"date":  c.Date,
		"today": BarMap(c.Today),
	}
	if c.Name != "" {
		m["name"] = c.Name
	}
	if c.Yesterday != nil {
		m["yesterday"] = BarMap(c.Yesterday)
	}
	if c.VolumeChangeRatio.Valid {
		m["volume_change_ratio"] = c.VolumeChangeRatio.Float64
	}
	if c.PriceChangeRatio.Valid {
		m["price_change_ratio"] = c.PriceChangeRatio.Float64
	}
	if c.Regime != "" {
		m["ma_status"] = c.Regime.Label()
		m["ma_regime"] = string(c.Regime)
	}
	return m
}

// BarMap renders a bar as a column-name mapping. Null fields are omitted.
func BarMap(b *DailyBar) map[string]any {
	if b == nil {
		return nil
	}
	m := map[string]any{
		"code":          b.Code,
		"date":          b.Date.Format(DateLayout),
		"basic_fetched": b.BasicFetched,
	}
	if b.DataSource != "" {
		m["data_source"] = b.DataSource
	}
	for name, f := range map[string]null.Float{
		"open":               b.Open,
		"high":               b.High,
		"low":                b.Low,
		"close":              b.Close,
		"volume":             b.Volume,
		"amount":             b.Amount,
		"pct_chg":            b.PctChg,
		"ma5":                b.MA5,
		"ma10":               b.MA10,
		"ma20":               b.MA20,
		"volume_ratio":       b.VolumeRatio,
		"turnover_rate":      b.TurnoverRate,
		"volume_ratio_basic": b.VolumeRatioBasic,
		"pe":                 b.PE,
		"pb":                 b.PB,
		"total_mv":           b.TotalMV,
		"circ_mv":            b.CircMV,
	} {
		if f.Valid {
			m[name] = f.Float64
		}
	}
	return m
}
