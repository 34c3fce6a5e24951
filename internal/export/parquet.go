package export

import (
	"BarLedger/internal/model"

	"github.com/parquet-go/parquet-go"
)

// ParquetWriter writes bars as a single Parquet file; missing values are nulls.
type ParquetWriter struct{}

func (ParquetWriter) Extension() string { return "parquet" }

func (ParquetWriter) Write(bars []model.DailyBar, path string) error {
	return parquet.WriteFile(path, Rows(bars))
}
