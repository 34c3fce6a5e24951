package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"BarLedger/internal/model"
)

var csvHeader = []string{
	"code", "date", "open", "high", "low", "close", "volume", "amount", "pct_chg",
	"ma5", "ma10", "ma20", "volume_ratio",
	"turnover_rate", "volume_ratio_basic", "pe", "pb", "total_mv", "circ_mv",
	"basic_fetched", "data_source", "updated_at",
}

// CSVWriter writes one header line then one line per bar. Missing values are
// empty cells.
type CSVWriter struct{}

func (CSVWriter) Extension() string { return "csv" }

func (CSVWriter) Write(bars []model.DailyBar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range Rows(bars) {
		if err := w.Write([]string{
			r.Code, r.Date,
			floatStr(r.Open), floatStr(r.High), floatStr(r.Low), floatStr(r.Close),
			floatStr(r.Volume), floatStr(r.Amount), floatStr(r.PctChg),
			floatStr(r.MA5), floatStr(r.MA10), floatStr(r.MA20), floatStr(r.VolumeRatio),
			floatStr(r.TurnoverRate), floatStr(r.VolumeRatioBasic), floatStr(r.PE), floatStr(r.PB),
			floatStr(r.TotalMV), floatStr(r.CircMV),
			strconv.FormatBool(r.BasicFetched), r.DataSource, r.UpdatedAt,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func floatStr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
