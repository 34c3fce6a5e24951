package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func bar(date time.Time, close float64) model.DailyBar {
	return model.DailyBar{
		Code:   "600519",
		Date:   date,
		Open:   null.FloatFrom(close - 1),
		High:   null.FloatFrom(close + 1),
		Low:    null.FloatFrom(close - 2),
		Close:  null.FloatFrom(close),
		Volume: null.FloatFrom(1000),
	}
}

func TestUpsert_InsertThenIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bars := []model.DailyBar{bar(day1, 10), bar(day1.AddDate(0, 0, 1), 11)}

	res, err := s.Upsert(ctx, "600519", bars, "tushare")
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 2}, res)

	first, err := s.Range(ctx, "600519", day1, day1.AddDate(0, 0, 5))
	require.NoError(t, err)

	res, err = s.Upsert(ctx, "600519", bars, "tushare")
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Updated: 2}, res)

	second, err := s.Range(ctx, "600519", day1, day1.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, second, 2)
	for i := range first {
		first[i].UpdatedAt, second[i].UpdatedAt = time.Time{}, time.Time{}
	}
	assert.Equal(t, first, second)
}

func TestUpsert_PartialMergeNeverErases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	full := bar(day1, 10)
	full.PE = null.FloatFrom(25)
	full.MA5 = null.FloatFrom(9.5)
	full.BasicFetched = true
	_, err := s.Upsert(ctx, "600519", []model.DailyBar{full}, "tushare")
	require.NoError(t, err)

	partial := model.DailyBar{Code: "600519", Date: day1, Close: null.FloatFrom(10.5), PB: null.FloatFrom(3)}
	res, err := s.Upsert(ctx, "600519", []model.DailyBar{partial}, "eastmoney")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	got, err := s.Latest(ctx, "600519", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, 10.5, b.Close.Float64, "present value overwrites")
	assert.Equal(t, 9.0, b.Open.Float64, "absent value keeps stored")
	assert.Equal(t, 9.5, b.MA5.Float64)
	assert.Equal(t, 25.0, b.PE.Float64)
	assert.Equal(t, 3.0, b.PB.Float64)
	assert.True(t, b.BasicFetched, "flag is sticky")
	assert.Equal(t, "eastmoney", b.DataSource)
}

func TestUpsert_ConcurrentSameKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan UpsertResult, writers)
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := model.DailyBar{Code: "600519", Date: day1}
			if i%2 == 0 {
				b.Close = null.FloatFrom(float64(100 + i))
			} else {
				b.PE = null.FloatFrom(30)
				b.BasicFetched = true
			}
			res, err := s.Upsert(ctx, "600519", []model.DailyBar{b}, "tushare")
			results <- res
			errs <- err
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	inserted, updated := 0, 0
	for r := range results {
		inserted += r.Inserted
		updated += r.Updated
	}
	assert.Equal(t, 1, inserted)
	assert.Equal(t, writers-1, updated)

	bars, err := s.Range(ctx, "600519", day1, day1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Valid)
	assert.Equal(t, 30.0, bars[0].PE.Float64)
	assert.True(t, bars[0].BasicFetched)
}

func TestUpsert_RollsBackWholeBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bars := []model.DailyBar{bar(day1, 10), {Code: "600519"}}

	_, err := s.Upsert(ctx, "600519", bars, "tushare")
	require.ErrorIs(t, err, ErrPersistence)

	ok, err := s.Exists(ctx, "600519", day1, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsert_EmptyCode(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Upsert(context.Background(), "", []model.DailyBar{bar(day1, 10)}, "x")
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestExists_RequireBasic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, "600519", []model.DailyBar{bar(day1, 10)}, "eastmoney")
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "600519", day1, false)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "600519", day1, true)
	require.NoError(t, err)
	assert.False(t, ok)

	withBasic := model.DailyBar{Code: "600519", Date: day1, TurnoverRate: null.FloatFrom(0.5)}
	_, err = s.Upsert(ctx, "600519", []model.DailyBar{withBasic}, "")
	require.NoError(t, err)
	ok, err = s.Exists(ctx, "600519", day1, true)
	require.NoError(t, err)
	assert.True(t, ok, "any supplementary value counts")

	ok, err = s.Exists(ctx, "000001", day1, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestAndRangeOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var bars []model.DailyBar
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(day1.AddDate(0, 0, i), float64(10+i)))
	}
	_, err := s.Upsert(ctx, "600519", bars, "tushare")
	require.NoError(t, err)

	latest, err := s.Latest(ctx, "600519", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, day1.AddDate(0, 0, 4), latest[0].Date)
	assert.Equal(t, day1.AddDate(0, 0, 3), latest[1].Date)

	rng, err := s.Range(ctx, "600519", day1.AddDate(0, 0, 1), day1.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, rng, 3)
	assert.Equal(t, 11.0, rng[0].Close.Float64)
	assert.Equal(t, 13.0, rng[2].Close.Float64)
	assert.Equal(t, "tushare", rng[0].DataSource)
}

func TestOpen_MigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE daily_bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL, date TEXT NOT NULL,
		open REAL, high REAL, low REAL, close REAL, volume REAL, amount REAL, pct_chg REAL,
		ma5 REAL, ma10 REAL, ma20 REAL, volume_ratio REAL, data_source TEXT,
		created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL,
		UNIQUE(code, date))`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO daily_bars (code, date, close, created_at, updated_at)
		VALUES ('600519', '2024-01-03', 10.0, 1, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Latest(context.Background(), "600519", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Close.Float64)
	assert.False(t, got[0].PE.Valid)
	assert.False(t, got[0].BasicFetched)

	b := model.DailyBar{Code: "600519", Date: day1, PE: null.FloatFrom(30), BasicFetched: true}
	_, err = s.Upsert(context.Background(), "600519", []model.DailyBar{b}, "tushare")
	require.NoError(t, err)
	ok, err := s.Exists(context.Background(), "600519", day1, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bars.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), "600519", []model.DailyBar{bar(day1, 10)}, "tushare")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	ok, err := s.Exists(context.Background(), "600519", day1, false)
	require.NoError(t, err)
	assert.True(t, ok)
}
