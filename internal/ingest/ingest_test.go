package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"BarLedger/internal/collector"
	"BarLedger/internal/model"
	"BarLedger/internal/store"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan = func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

type fakeProvider struct {
	name   string
	calls  atomic.Int32
	fail   error
	latest time.Time // trade calendar answer, zero for none
}

func (p *fakeProvider) Name() string    { return p.name }
func (p *fakeProvider) Priority() int   { return 0 }
func (p *fakeProvider) Available() bool { return true }

// FetchDaily returns one bar per calendar day in range, close = day of month.
func (p *fakeProvider) FetchDaily(_ context.Context, code string, start, end time.Time) ([]model.DailyBar, error) {
	p.calls.Add(1)
	if p.fail != nil {
		return nil, p.fail
	}
	var out []model.DailyBar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, model.DailyBar{
			Code:         code,
			Date:         d,
			Close:        null.FloatFrom(float64(d.Day())),
			Volume:       null.FloatFrom(1000),
			PE:           null.FloatFrom(20),
			BasicFetched: true,
		})
	}
	return out, nil
}

func (p *fakeProvider) FetchName(context.Context, string) (string, error) { return "", collector.ErrUnsupported }
func (p *fakeProvider) FetchList(context.Context) ([]model.SecurityInfo, error) {
	return nil, collector.ErrUnsupported
}
func (p *fakeProvider) FetchRealtimeQuote(context.Context, string) (*model.Quote, error) {
	return nil, collector.ErrUnsupported
}

type calendarProvider struct{ *fakeProvider }

func (p calendarProvider) TradeStatus(context.Context) (model.TradeStatus, error) {
	return model.TradeStatus{LatestTradeDate: p.latest, IsTradeDayToday: false}, nil
}

func openStore(t *testing.T) *store.SQLiteStore {
	s, err := store.Open(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngest_FetchesEnrichesAndStores(t *testing.T) {
	s := openStore(t)
	p := &fakeProvider{name: "fake"}
	in := New(collector.NewRegistry(nil, p), s, Options{LookbackDays: 5, RequireBasic: true})

	rep, err := in.Ingest(context.Background(), "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.Equal(t, "fake", rep.Source)
	assert.Equal(t, 3, rep.Fetched, "lookback rows are not stored")
	assert.Equal(t, 3, rep.Inserted)

	bars, err := s.Range(context.Background(), "600519", jan(1), jan(31))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, jan(10), bars[0].Date)
	assert.Equal(t, 8.0, bars[0].MA5.Float64, "MA5 of days 6..10 uses the lookback")
	assert.Equal(t, "fake", bars[0].DataSource)
}

func TestIngest_SkipsCompleteRange(t *testing.T) {
	s := openStore(t)
	p := &fakeProvider{name: "fake"}
	in := New(collector.NewRegistry(nil, p), s, Options{RequireBasic: true})
	ctx := context.Background()

	_, err := in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	rep, err := in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, int32(1), p.calls.Load())

	in.opts.Force = true
	rep, err = in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 3, rep.Updated)
}

func TestIngest_FillsGapBeforeCompleteLastDay(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, "600519", []model.DailyBar{
		{Date: jan(12), Close: null.FloatFrom(99), PE: null.FloatFrom(20), BasicFetched: true},
	}, "tushare")
	require.NoError(t, err)

	p := &fakeProvider{name: "fake"}
	in := New(collector.NewRegistry(nil, p), s, Options{RequireBasic: true})
	rep, err := in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 0, rep.Updated, "complete rows are left alone")

	bars, err := s.Range(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 99.0, bars[2].Close.Float64)

	rep, err = in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestIngest_RefetchesIncompleteInteriorRow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, "600519", []model.DailyBar{
		{Date: jan(10), Close: null.FloatFrom(1), PE: null.FloatFrom(20), BasicFetched: true},
		{Date: jan(11), Close: null.FloatFrom(1)},
		{Date: jan(12), Close: null.FloatFrom(1), PE: null.FloatFrom(20), BasicFetched: true},
	}, "tushare")
	require.NoError(t, err)

	p := &fakeProvider{name: "fake"}
	in := New(collector.NewRegistry(nil, p), s, Options{RequireBasic: true})
	rep, err := in.Ingest(ctx, "600519", jan(10), jan(12))
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.Fetched)
	assert.Equal(t, 1, rep.Updated)

	ok, err := s.Exists(ctx, "600519", jan(11), true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngest_IncompleteFundamentalsRefetch(t *testing.T) {
	s := openStore(t)
	_, err := s.Upsert(context.Background(), "600519", []model.DailyBar{{Date: jan(12), Close: null.FloatFrom(1)}}, "eastmoney")
	require.NoError(t, err)

	p := &fakeProvider{name: "fake"}
	in := New(collector.NewRegistry(nil, p), s, Options{RequireBasic: true})
	rep, err := in.Ingest(context.Background(), "600519", jan(12), jan(12))
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.Updated)

	ok, err := s.Exists(context.Background(), "600519", jan(12), true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngest_ClampsEndToLatestTradeDate(t *testing.T) {
	s := openStore(t)
	p := calendarProvider{&fakeProvider{name: "cal", latest: jan(11)}}
	in := New(collector.NewRegistry(nil, p), s, Options{})

	rep, err := in.Ingest(context.Background(), "600519", jan(10), jan(14))
	require.NoError(t, err)
	assert.Equal(t, jan(11), rep.End)
	assert.Equal(t, 2, rep.Inserted)
}

func TestIngest_AllProvidersFail(t *testing.T) {
	s := openStore(t)
	p := &fakeProvider{name: "fake", fail: errors.New("quota exceeded")}
	in := New(collector.NewRegistry(nil, p), s, Options{})

	_, err := in.Ingest(context.Background(), "600519", jan(10), jan(12))
	var agg *collector.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, collector.KindRateLimited, agg.Failures[0].Kind)
}

func TestIngest_BadRange(t *testing.T) {
	in := New(collector.NewRegistry(nil, &fakeProvider{name: "fake"}), openStore(t), Options{})
	_, err := in.Ingest(context.Background(), "600519", jan(12), jan(10))
	assert.Error(t, err)
}

func TestBatch_Run(t *testing.T) {
	s := openStore(t)
	var built atomic.Int32
	b := &Batch{
		Workers: 3,
		NewIngester: func(worker, workers int) (*Ingester, error) {
			built.Add(1)
			assert.Equal(t, 3, workers)
			p := &fakeProvider{name: fmt.Sprintf("w%d", worker)}
			return New(collector.NewRegistry(nil, p), s, Options{}), nil
		},
	}
	_, err := s.Upsert(context.Background(), "000001", []model.DailyBar{
		{Date: jan(10), Close: null.FloatFrom(1)},
		{Date: jan(11), Close: null.FloatFrom(1)},
		{Date: jan(12), Close: null.FloatFrom(1)},
	}, "x")
	require.NoError(t, err)

	rep, err := b.Run(context.Background(), []string{"600519", "000001", "300750", "002594"}, jan(10), jan(12))
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, int32(3), built.Load())
	assert.Len(t, rep.Succeeded, 3)
	assert.Equal(t, []string{"000001"}, rep.Skipped)
	assert.Empty(t, rep.Failed)
	assert.Equal(t, "002594", rep.Succeeded[0].Code)
}

func TestBatch_CollectsFailures(t *testing.T) {
	s := openStore(t)
	b := &Batch{
		Workers: 2,
		NewIngester: func(int, int) (*Ingester, error) {
			return New(collector.NewRegistry(nil, &fakeProvider{name: "f", fail: errors.New("boom")}), s, Options{}), nil
		},
	}
	rep, err := b.Run(context.Background(), []string{"600519", "000001"}, jan(10), jan(12))
	require.NoError(t, err)
	require.Len(t, rep.Failed, 2)
	assert.Equal(t, "000001", rep.Failed[0].Code)
	assert.Contains(t, rep.Failed[0].Reason, "boom")
}

func TestBatch_WorkerBuildError(t *testing.T) {
	b := &Batch{Workers: 1, NewIngester: func(int, int) (*Ingester, error) { return nil, errors.New("no config") }}
	_, err := b.Run(context.Background(), []string{"600519"}, jan(10), jan(12))
	assert.Error(t, err)
}

func TestBatch_PassesEffectiveWorkerCount(t *testing.T) {
	s := openStore(t)
	var got []int
	b := &Batch{
		Workers: 4,
		NewIngester: func(worker, workers int) (*Ingester, error) {
			got = append(got, workers)
			return New(collector.NewRegistry(nil, &fakeProvider{name: "f"}), s, Options{}), nil
		},
	}
	_, err := b.Run(context.Background(), []string{"600519"}, jan(10), jan(12))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
}
