package collector

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"BarLedger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_UnitConversion(t *testing.T) {
	frame := RawFrame{
		Fields: []string{"ts_code", "trade_date", "open", "close", "vol", "amount", "extra"},
		Items: [][]any{
			{"600519.SH", "20240103", json.Number("10.5"), json.Number("11"), json.Number("500"), json.Number("200"), "x"},
		},
	}
	bars, err := Normalize("600519", frame, tushareDailyMapping)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assert.Equal(t, "600519", b.Code)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, 50000.0, b.Volume.Float64)
	assert.Equal(t, 200000.0, b.Amount.Float64)
	assert.Equal(t, 10.5, b.Open.Float64)
	assert.False(t, b.High.Valid)
}

func TestNormalize_UnparsableNumberIsMissing(t *testing.T) {
	frame := RawFrame{
		Fields: []string{"trade_date", "close", "vol"},
		Items:  [][]any{{"20240103", "n/a", nil}},
	}
	bars, err := Normalize("000001", frame, tushareDailyMapping)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.False(t, bars[0].Close.Valid)
	assert.False(t, bars[0].Volume.Valid)
}

func TestNormalize_SortsByDate(t *testing.T) {
	frame := RawFrame{
		Fields: []string{"trade_date", "close"},
		Items:  [][]any{{"20240105", 3.0}, {"20240103", 1.0}, {"20240104", 2.0}},
	}
	bars, err := Normalize("000001", frame, tushareDailyMapping)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 1.0, bars[0].Close.Float64)
	assert.Equal(t, 3.0, bars[2].Close.Float64)
}

func TestNormalize_BadDate(t *testing.T) {
	frame := RawFrame{Fields: []string{"trade_date"}, Items: [][]any{{"yesterday"}}}
	_, err := Normalize("000001", frame, tushareDailyMapping)
	assert.Error(t, err)
}

func TestMergeFundamentals(t *testing.T) {
	d1 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	bars := []model.DailyBar{{Code: "600519", Date: d1}, {Code: "600519", Date: d2}}

	frame := RawFrame{
		Fields: []string{"ts_code", "trade_date", "turnover_rate", "volume_ratio", "pe", "pb", "total_mv", "circ_mv"},
		Items:  [][]any{{"600519.SH", "20240103", 0.5, 1.2, "28.1", "9.3", 2.1e7, 2.1e7}},
	}
	funds, err := NormalizeFundamentals(frame, tushareBasicMapping)
	require.NoError(t, err)
	MergeFundamentals(bars, funds)

	assert.True(t, bars[0].BasicFetched)
	assert.Equal(t, 1.2, bars[0].VolumeRatioBasic.Float64)
	assert.Equal(t, 28.1, bars[0].PE.Float64)
	assert.False(t, bars[0].VolumeRatio.Valid)
	assert.False(t, bars[1].BasicFetched)
	assert.False(t, bars[1].PE.Valid)
}

func TestMergeFundamentals_EmptyRowIsNotBasic(t *testing.T) {
	d := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := []model.DailyBar{{Code: "600519", Date: d}}
	frame := RawFrame{
		Fields: []string{"date", "turnover"},
		Items:  [][]any{{"2024-01-03", "-"}},
	}
	funds, err := NormalizeFundamentals(frame, eastMoneyBasicMapping)
	require.NoError(t, err)
	MergeFundamentals(bars, funds)

	assert.False(t, bars[0].BasicFetched)
	assert.False(t, bars[0].TurnoverRate.Valid)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, 1.25, ParseNumber("1.25").Float64)
	assert.Equal(t, 3.0, ParseNumber(json.Number("3")).Float64)
	assert.False(t, ParseNumber("-").Valid)
	assert.False(t, ParseNumber("").Valid)
	assert.False(t, ParseNumber(true).Valid)
	assert.False(t, ParseNumber(math.NaN()).Valid)
	assert.False(t, ParseNumber(math.Inf(1)).Valid)
	assert.False(t, ParseNumber(float32(math.Inf(-1))).Valid)
	assert.False(t, ParseNumber("NaN").Valid)
}

func TestNormalize_UnixSecondDates(t *testing.T) {
	m := Mapping{Columns: map[string]string{"close": "close"}, DateColumn: "ts"}
	frame := RawFrame{
		Fields: []string{"ts", "close"},
		Items: [][]any{
			{json.Number("1704326400"), json.Number("10")}, // 2024-01-04T00:00:00Z
			{float64(1704240000), json.Number("9")},         // 2024-01-03T00:00:00Z
			{int64(1704412800), json.Number("11")},          // 2024-01-05T00:00:00Z
		},
	}
	bars, err := Normalize("600519", frame, m)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bars[1].Date)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), bars[2].Date)
	assert.Equal(t, 11.0, bars[2].Close.Float64)
}
