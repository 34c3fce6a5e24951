package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	name     string
	priority int
	off      bool
	bars     []model.DailyBar
	err      error
	quoteErr error
	calls    int
}

func (s *stubFetcher) Name() string    { return s.name }
func (s *stubFetcher) Priority() int   { return s.priority }
func (s *stubFetcher) Available() bool { return !s.off }

func (s *stubFetcher) FetchDaily(context.Context, string, time.Time, time.Time) ([]model.DailyBar, error) {
	s.calls++
	return s.bars, s.err
}

func (s *stubFetcher) FetchName(context.Context, string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.name + "-name", nil
}

func (s *stubFetcher) FetchList(context.Context) ([]model.SecurityInfo, error) {
	return nil, ErrUnsupported
}

func (s *stubFetcher) FetchRealtimeQuote(context.Context, string) (*model.Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	return &model.Quote{Code: "600519", Price: 1}, nil
}

func oneBar() []model.DailyBar {
	return []model.DailyBar{{Code: "600519", Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: null.FloatFrom(10)}}
}

func TestNewRegistry_OrdersByPriorityAndDropsUnavailable(t *testing.T) {
	a := &stubFetcher{name: "a", priority: 2}
	b := &stubFetcher{name: "b", priority: 0}
	c := &stubFetcher{name: "c", priority: 1, off: true}
	d := &stubFetcher{name: "d", priority: 2}

	r := NewRegistry(nil, a, b, c, d)
	var names []string
	for _, f := range r.Fetchers() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"b", "a", "d"}, names)
}

func TestFetchDaily_FailsOverInOrder(t *testing.T) {
	limited := &stubFetcher{name: "tushare", priority: 0, err: &Error{Provider: "tushare", Kind: KindRateLimited, Err: errors.New("每分钟最多访问")}}
	broken := &stubFetcher{name: "eastmoney", priority: 1, err: &Error{Provider: "eastmoney", Kind: KindFetchFailed, Err: errors.New("bad payload")}}
	good := &stubFetcher{name: "yahoo", priority: 2, bars: oneBar()}

	r := NewRegistry(nil, good, broken, limited)
	res, err := r.FetchDaily(context.Background(), "600519", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "yahoo", res.Source)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, "yahoo", res.Bars[0].DataSource)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "tushare", res.Failures[0].Provider)
	assert.Equal(t, KindRateLimited, res.Failures[0].Kind)
	assert.Equal(t, "eastmoney", res.Failures[1].Provider)
	assert.Equal(t, KindFetchFailed, res.Failures[1].Kind)
}

func TestFetchDaily_EmptyResultCountsAsFailure(t *testing.T) {
	empty := &stubFetcher{name: "first", priority: 0}
	good := &stubFetcher{name: "second", priority: 1, bars: oneBar()}

	res, err := NewRegistry(nil, empty, good).FetchDaily(context.Background(), "600519", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Source)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, KindFetchFailed, res.Failures[0].Kind)
}

func TestFetchDaily_AllFail(t *testing.T) {
	a := &stubFetcher{name: "a", priority: 0, err: errors.New("quota exceeded")}
	b := &stubFetcher{name: "b", priority: 1}

	_, err := NewRegistry(nil, a, b).FetchDaily(context.Background(), "600519", time.Time{}, time.Time{})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	assert.Equal(t, KindRateLimited, agg.Failures[0].Kind)
	assert.Contains(t, err.Error(), "a(rate_limited)")
	assert.Contains(t, err.Error(), "b(fetch_failed)")
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchDaily_NoProviders(t *testing.T) {
	_, err := NewRegistry(nil, &stubFetcher{name: "a", off: true}).FetchDaily(context.Background(), "600519", time.Time{}, time.Time{})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Empty(t, agg.Failures)
}

func TestFetchDaily_StopsOnCancelledContext(t *testing.T) {
	a := &stubFetcher{name: "a", priority: 0, bars: oneBar()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRegistry(nil, a).FetchDaily(ctx, "600519", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, a.calls)
}

func TestFetchRealtimeQuote_SkipsUnsupported(t *testing.T) {
	a := &stubFetcher{name: "a", priority: 0, quoteErr: ErrUnsupported}
	b := &stubFetcher{name: "b", priority: 1}
	q, err := NewRegistry(nil, a, b).FetchRealtimeQuote(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.Price)
}

func TestFetchList_AllUnsupported(t *testing.T) {
	_, err := NewRegistry(nil, &stubFetcher{name: "a"}).FetchList(context.Background())
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Empty(t, agg.Failures)
}

func TestFetchName_FailsOver(t *testing.T) {
	a := &stubFetcher{name: "a", priority: 0, err: errors.New("boom")}
	b := &stubFetcher{name: "b", priority: 1}
	name, err := NewRegistry(nil, a, b).FetchName(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, "b-name", name)
}
