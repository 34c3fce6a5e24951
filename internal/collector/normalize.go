package collector

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// RawFrame is a provider table: column names plus rows of loosely typed cells.
type RawFrame struct {
	Fields []string
	Items  [][]any
}

// Len returns the row count.
func (f RawFrame) Len() int { return len(f.Items) }

// Mapping describes how one provider table maps onto canonical columns.
type Mapping struct {
	Columns     map[string]string // provider column -> canonical column
	DateColumn  string            // provider column holding the trading day
	DateLayout  string
	VolumeScale float64 // provider volume unit -> shares
	AmountScale float64 // provider amount unit -> base currency
}

var barColumns = map[string]func(*model.DailyBar, null.Float){
	"open":    func(b *model.DailyBar, v null.Float) { b.Open = v },
	"high":    func(b *model.DailyBar, v null.Float) { b.High = v },
	"low":     func(b *model.DailyBar, v null.Float) { b.Low = v },
	"close":   func(b *model.DailyBar, v null.Float) { b.Close = v },
	"volume":  func(b *model.DailyBar, v null.Float) { b.Volume = v },
	"amount":  func(b *model.DailyBar, v null.Float) { b.Amount = v },
	"pct_chg": func(b *model.DailyBar, v null.Float) { b.PctChg = v },
}

var basicColumns = map[string]func(*model.Fundamentals, null.Float){
	"turnover_rate":      func(f *model.Fundamentals, v null.Float) { f.TurnoverRate = v },
	"volume_ratio_basic": func(f *model.Fundamentals, v null.Float) { f.VolumeRatioBasic = v },
	"pe":                 func(f *model.Fundamentals, v null.Float) { f.PE = v },
	"pb":                 func(f *model.Fundamentals, v null.Float) { f.PB = v },
	"total_mv":           func(f *model.Fundamentals, v null.Float) { f.TotalMV = v },
	"circ_mv":            func(f *model.Fundamentals, v null.Float) { f.CircMV = v },
}

// Normalize converts a provider table into canonical bars for code, sorted by
// date. Provider columns without a canonical counterpart are dropped and
// unparsable numbers become missing. Only an unparsable date is an error.
func Normalize(code string, frame RawFrame, m Mapping) ([]model.DailyBar, error) {
	byDate := make(map[time.Time]*model.DailyBar, frame.Len())
	err := eachRow(frame, m, func(day time.Time, cells map[string]null.Float) {
		b := &model.DailyBar{Code: code, Date: day}
		for col, v := range cells {
			if set, ok := barColumns[col]; ok {
				set(b, v)
			}
		}
		byDate[day] = b
	})
	if err != nil {
		return nil, err
	}
	bars := make([]model.DailyBar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, *b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// NormalizeFundamentals converts a provider table into supplementary rows.
func NormalizeFundamentals(frame RawFrame, m Mapping) ([]model.Fundamentals, error) {
	out := make([]model.Fundamentals, 0, frame.Len())
	err := eachRow(frame, m, func(day time.Time, cells map[string]null.Float) {
		f := model.Fundamentals{Date: day}
		for col, v := range cells {
			if set, ok := basicColumns[col]; ok {
				set(&f, v)
			}
		}
		out = append(out, f)
	})
	return out, err
}

// MergeFundamentals left-joins supplementary rows onto bars by date. Only bars
// matched to a row holding at least one value are flagged BasicFetched.
func MergeFundamentals(bars []model.DailyBar, funds []model.Fundamentals) {
	byDate := make(map[time.Time]model.Fundamentals, len(funds))
	for _, f := range funds {
		byDate[f.Date] = f
	}
	for i := range bars {
		if f, ok := byDate[bars[i].Date]; ok {
			bars[i].ApplyFundamentals(f)
		} else {
			bars[i].BasicFetched = false
		}
	}
}

func eachRow(frame RawFrame, m Mapping, fn func(time.Time, map[string]null.Float)) error {
	idx := make(map[string]int, len(frame.Fields))
	for i, name := range frame.Fields {
		idx[name] = i
	}
	di, ok := idx[m.DateColumn]
	if !ok {
		return fmt.Errorf("normalize: date column %q missing", m.DateColumn)
	}
	for r, row := range frame.Items {
		if di >= len(row) {
			return fmt.Errorf("normalize: row %d has no date", r)
		}
		day, err := parseDay(row[di], m.DateLayout)
		if err != nil {
			return fmt.Errorf("normalize: row %d: %w", r, err)
		}
		cells := make(map[string]null.Float, len(m.Columns))
		for src, dst := range m.Columns {
			i, ok := idx[src]
			if !ok || i >= len(row) {
				continue
			}
			v := ParseNumber(row[i])
			switch dst {
			case "volume":
				v = scale(v, m.VolumeScale)
			case "amount":
				v = scale(v, m.AmountScale)
			}
			cells[dst] = v
		}
		fn(day, cells)
	}
	return nil
}

func parseDay(v any, layout string) (time.Time, error) {
	s := strings.TrimSpace(fmt.Sprint(v))
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case float64:
		s = strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(n, 10)
	}
	for _, l := range []string{layout, "20060102", model.DateLayout} {
		if l == "" {
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return model.Day(t), nil
		}
	}
	// Anything longer than YYYYMMDD that is all digits is unix seconds.
	if len(s) > 8 {
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return model.Day(time.Unix(sec, 0).UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// ParseNumber coerces a provider cell into a float. Anything that is not a
// finite number comes back missing.
func ParseNumber(v any) null.Float {
	switch n := v.(type) {
	case nil:
		return null.Float{}
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return null.FloatFrom(float64(n))
	case int64:
		return null.FloatFrom(float64(n))
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	}
	return null.Float{}
}

func finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func parseDecimal(s string) null.Float {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return null.Float{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(d.InexactFloat64())
}

func scale(v null.Float, factor float64) null.Float {
	if !v.Valid || factor == 0 || factor == 1 {
		return v
	}
	return null.FloatFrom(decimal.NewFromFloat(v.Float64).Mul(decimal.NewFromFloat(factor)).InexactFloat64())
}
