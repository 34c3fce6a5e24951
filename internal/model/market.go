package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the canonical on-disk and wire form of a trading day.
const DateLayout = "2006-01-02"

// DailyBar is one trading day of one security. Optional fields are null
// when the provider did not supply them; a null never overwrites a stored value.
type DailyBar struct {
	Code string
	Date time.Time // calendar day, UTC midnight

	Open   null.Float
	High   null.Float
	Low    null.Float
	Close  null.Float
	Volume null.Float // shares
	Amount null.Float // base currency unit
	PctChg null.Float // percent

	MA5         null.Float
	MA10        null.Float
	MA20        null.Float
	VolumeRatio null.Float

	TurnoverRate     null.Float
	VolumeRatioBasic null.Float
	PE               null.Float
	PB               null.Float
	TotalMV          null.Float
	CircMV           null.Float

	BasicFetched bool
	DataSource   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasBasic reports whether the bar carries fundamentals: the flag, or any
// supplementary value for rows stored before the flag existed.
func (b *DailyBar) HasBasic() bool {
	return b.BasicFetched || Fundamentals{
		TurnoverRate:     b.TurnoverRate,
		VolumeRatioBasic: b.VolumeRatioBasic,
		PE:               b.PE,
		PB:               b.PB,
		TotalMV:          b.TotalMV,
		CircMV:           b.CircMV,
	}.Known()
}

// ApplyFundamentals copies the supplementary values of f onto the bar. The
// bar only counts as basic-fetched when f carries at least one value.
func (b *DailyBar) ApplyFundamentals(f Fundamentals) {
	b.TurnoverRate = f.TurnoverRate
	b.VolumeRatioBasic = f.VolumeRatioBasic
	b.PE = f.PE
	b.PB = f.PB
	b.TotalMV = f.TotalMV
	b.CircMV = f.CircMV
	b.BasicFetched = f.Known()
}

// Fundamentals holds the per-day supplementary metrics of one security.
type Fundamentals struct {
	Date             time.Time
	TurnoverRate     null.Float
	VolumeRatioBasic null.Float
	PE               null.Float
	PB               null.Float
	TotalMV          null.Float
	CircMV           null.Float
}

// Known reports whether any supplementary value is present.
func (f Fundamentals) Known() bool {
	for _, v := range []null.Float{f.TurnoverRate, f.VolumeRatioBasic, f.PE, f.PB, f.TotalMV, f.CircMV} {
		if v.Valid {
			return true
		}
	}
	return false
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
