package calculator

import (
	"errors"

	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// VolumeRatioWindow is how many prior sessions the volume ratio averages over.
const VolumeRatioWindow = 5

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// Enrich fills MA5, MA10, MA20 and VolumeRatio on bars sorted ascending by
// date. Averages use whatever closes exist inside the window, so early bars
// get shorter averages instead of none. VolumeRatio is today's volume over
// the mean of the previous five sessions.
func Enrich(bars []model.DailyBar) {
	for i := range bars {
		bars[i].MA5 = rollingMean(bars, i, 5, closeOf)
		bars[i].MA10 = rollingMean(bars, i, 10, closeOf)
		bars[i].MA20 = rollingMean(bars, i, 20, closeOf)
		bars[i].VolumeRatio = volumeRatio(bars, i)
	}
}

func closeOf(b *model.DailyBar) null.Float  { return b.Close }
func volumeOf(b *model.DailyBar) null.Float { return b.Volume }

// rollingMean averages the valid values of the window ending at i.
func rollingMean(bars []model.DailyBar, i, window int, field func(*model.DailyBar) null.Float) null.Float {
	from := i - window + 1
	if from < 0 {
		from = 0
	}
	var vals []float64
	for j := from; j <= i; j++ {
		if v := field(&bars[j]); v.Valid {
			vals = append(vals, v.Float64)
		}
	}
	if len(vals) == 0 {
		return null.Float{}
	}
	avg, _ := CalculateSMA(vals, len(vals))
	return null.FloatFrom(round(avg, 4))
}

func volumeRatio(bars []model.DailyBar, i int) null.Float {
	if i == 0 || !bars[i].Volume.Valid {
		return null.Float{}
	}
	prev := rollingMean(bars, i-1, VolumeRatioWindow, volumeOf)
	if !prev.Valid || prev.Float64 <= 0 {
		return null.Float{}
	}
	return null.FloatFrom(round(bars[i].Volume.Float64/prev.Float64, 2))
}

func round(v float64, places int) float64 {
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}
