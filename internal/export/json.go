package export

import (
	"encoding/json"
	"os"

	"BarLedger/internal/model"
)

// JSONWriter writes bars as an indented JSON array.
type JSONWriter struct{}

func (JSONWriter) Extension() string { return "json" }

func (JSONWriter) Write(bars []model.DailyBar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Rows(bars)); err != nil {
		return err
	}
	return f.Close()
}
