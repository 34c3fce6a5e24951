// Package export writes stored bars to files.
package export

import (
	"strings"
	"time"

	"BarLedger/internal/model"
)

// Writer saves a slice of bars to one file.
type Writer interface {
	Write(bars []model.DailyBar, path string) error
	Extension() string
}

// NewWriter returns the writer for format (csv, parquet, json), or nil if the
// format is not supported.
func NewWriter(format string) Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVWriter{}
	case "parquet":
		return ParquetWriter{}
	case "json":
		return JSONWriter{}
	default:
		return nil
	}
}

// Row is the flat file form of a bar. Missing values are nil.
type Row struct {
	Code             string   `parquet:"code" json:"code"`
	Date             string   `parquet:"date" json:"date"`
	Open             *float64 `parquet:"open,optional" json:"open"`
	High             *float64 `parquet:"high,optional" json:"high"`
	Low              *float64 `parquet:"low,optional" json:"low"`
	Close            *float64 `parquet:"close,optional" json:"close"`
	Volume           *float64 `parquet:"volume,optional" json:"volume"`
	Amount           *float64 `parquet:"amount,optional" json:"amount"`
	PctChg           *float64 `parquet:"pct_chg,optional" json:"pct_chg"`
	MA5              *float64 `parquet:"ma5,optional" json:"ma5"`
	MA10             *float64 `parquet:"ma10,optional" json:"ma10"`
	MA20             *float64 `parquet:"ma20,optional" json:"ma20"`
	VolumeRatio      *float64 `parquet:"volume_ratio,optional" json:"volume_ratio"`
	TurnoverRate     *float64 `parquet:"turnover_rate,optional" json:"turnover_rate"`
	VolumeRatioBasic *float64 `parquet:"volume_ratio_basic,optional" json:"volume_ratio_basic"`
	PE               *float64 `parquet:"pe,optional" json:"pe"`
	PB               *float64 `parquet:"pb,optional" json:"pb"`
	TotalMV          *float64 `parquet:"total_mv,optional" json:"total_mv"`
	CircMV           *float64 `parquet:"circ_mv,optional" json:"circ_mv"`
	BasicFetched     bool     `parquet:"basic_fetched" json:"basic_fetched"`
	DataSource       string   `parquet:"data_source" json:"data_source"`
	UpdatedAt        string   `parquet:"updated_at" json:"updated_at"`
}

// Rows flattens bars in order.
func Rows(bars []model.DailyBar) []Row {
	out := make([]Row, len(bars))
	for i := range bars {
		b := &bars[i]
		r := Row{
			Code:             b.Code,
			Date:             b.Date.Format(model.DateLayout),
			Open:             b.Open.Ptr(),
			High:             b.High.Ptr(),
			Low:              b.Low.Ptr(),
			Close:            b.Close.Ptr(),
			Volume:           b.Volume.Ptr(),
			Amount:           b.Amount.Ptr(),
			PctChg:           b.PctChg.Ptr(),
			MA5:              b.MA5.Ptr(),
			MA10:             b.MA10.Ptr(),
			MA20:             b.MA20.Ptr(),
			VolumeRatio:      b.VolumeRatio.Ptr(),
			TurnoverRate:     b.TurnoverRate.Ptr(),
			VolumeRatioBasic: b.VolumeRatioBasic.Ptr(),
			PE:               b.PE.Ptr(),
			PB:               b.PB.Ptr(),
			TotalMV:          b.TotalMV.Ptr(),
			CircMV:           b.CircMV.Ptr(),
			BasicFetched:     b.BasicFetched,
			DataSource:       b.DataSource,
		}
		if !b.UpdatedAt.IsZero() {
			r.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out[i] = r
	}
	return out
}
