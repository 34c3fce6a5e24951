package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"BarLedger/internal/analysis"
	"BarLedger/internal/ingest"
	"BarLedger/internal/model"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	codes      []string
	start, end time.Time
	report     *ingest.BatchReport
	err        error
}

func (f *fakeRunner) Run(_ context.Context, codes []string, start, end time.Time) (*ingest.BatchReport, error) {
	f.codes, f.start, f.end = codes, start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeSender struct{ sent []string }

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.sent = append(f.sent, text)
	return nil
}

type fakeContexts map[string]*model.AnalysisContext

func (f fakeContexts) Context(_ context.Context, code string) (*model.AnalysisContext, error) {
	if c, ok := f[code]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%s: %w", code, analysis.ErrNoData)
}

func newTestScheduler(r *fakeRunner, s *fakeSender) *Scheduler {
	sch := NewScheduler(context.Background(), r, s, []string{"600519", "000001"}, 30)
	sch.Now = func() time.Time { return time.Date(2024, 3, 15, 18, 30, 0, 0, time.Local) }
	return sch
}

func TestRunNow_CoversHistoryWindow(t *testing.T) {
	r := &fakeRunner{report: &ingest.BatchReport{RunID: "r"}}
	s := &fakeSender{}
	sch := newTestScheduler(r, s)

	_, err := sch.RunNow()
	require.NoError(t, err)
	assert.Equal(t, []string{"600519", "000001"}, r.codes)
	assert.Equal(t, "2024-02-14", r.start.Format(model.DateLayout))
	assert.Equal(t, "2024-03-15", r.end.Format(model.DateLayout))
	assert.Empty(t, s.sent, "clean runs are not announced")
}

func TestRunNow_AlertsOnFailures(t *testing.T) {
	r := &fakeRunner{report: &ingest.BatchReport{
		RunID:  "r",
		Failed: []ingest.CodeFailure{{Code: "000001", Reason: "boom"}},
	}}
	s := &fakeSender{}
	_, err := newTestScheduler(r, s).RunNow()
	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "000001: boom")
}

func TestRunNow_RunnerError(t *testing.T) {
	r := &fakeRunner{err: errors.New("no provider")}
	s := &fakeSender{}
	_, err := newTestScheduler(r, s).RunNow()
	require.Error(t, err)
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "no provider")
}

func TestRunNow_EmptyWatchlist(t *testing.T) {
	sch := newTestScheduler(&fakeRunner{}, &fakeSender{})
	sch.Watchlist = nil
	_, err := sch.RunNow()
	assert.Error(t, err)
}

func TestRegister_InvalidCron(t *testing.T) {
	sch := newTestScheduler(&fakeRunner{}, nil)
	assert.Error(t, sch.Register("not a cron"))
	assert.NoError(t, sch.Register("0 30 18 * * 1-5"))
}

func TestHandleCommand(t *testing.T) {
	r := &fakeRunner{report: &ingest.BatchReport{RunID: "r"}}
	sch := newTestScheduler(r, &fakeSender{})
	sch.Contexts = fakeContexts{"600519": {
		Code: "600519", Date: "2024-03-15",
		Today:  &model.DailyBar{Close: null.FloatFrom(1700)},
		Regime: model.RegimeConsolidating,
	}}
	ctx := context.Background()

	assert.Contains(t, sch.HandleCommand(ctx, "/context 600519"), "震荡整理")
	assert.Contains(t, sch.HandleCommand(ctx, "/context 300750"), "暂无数据")
	assert.Contains(t, sch.HandleCommand(ctx, "/context"), "用法")

	assert.Contains(t, sch.HandleCommand(ctx, "/ingest 300750"), "成功: 0")
	assert.Equal(t, []string{"300750"}, r.codes)

	assert.Contains(t, sch.HandleCommand(ctx, "/help"), "可用命令")
	assert.Equal(t, "", sch.HandleCommand(ctx, "  "))
}
