package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"BarLedger/internal/analysis"
	"BarLedger/internal/ingest"
	"BarLedger/internal/logger"
	"BarLedger/internal/model"
	"BarLedger/internal/notifier"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner ingests a batch of codes.
type Runner interface {
	Run(ctx context.Context, codes []string, start, end time.Time) (*ingest.BatchReport, error)
}

// Sender delivers chat messages.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// ContextSource answers analysis lookups for chat commands.
type ContextSource interface {
	Context(ctx context.Context, code string) (*model.AnalysisContext, error)
}

// Scheduler runs the daily ingest on a cron schedule.
type Scheduler struct {
	Cron      *cron.Cron
	Runner    Runner
	Notifier  Sender // nil disables alerts
	Contexts  ContextSource
	Watchlist []string
	// HistoryDays is how many calendar days back each run covers.
	HistoryDays int
	Ctx         context.Context
	Now         func() time.Time

	mu  sync.Mutex // one run at a time
	log *logrus.Entry
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner, tn Sender, watchlist []string, historyDays int) *Scheduler {
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Runner:      runner,
		Notifier:    tn,
		Watchlist:   watchlist,
		HistoryDays: historyDays,
		Ctx:         ctx,
		Now:         time.Now,
		log:         logger.Component("scheduler"),
	}
}

// Register adds the daily ingest task.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow ingests the watchlist immediately.
func (s *Scheduler) RunNow() (*ingest.BatchReport, error) {
	return s.run(s.Ctx, s.Watchlist)
}

func (s *Scheduler) dailyTask() {
	if _, err := s.RunNow(); err != nil {
		s.log.WithError(err).Error("daily ingest")
	}
}

func (s *Scheduler) run(ctx context.Context, codes []string) (*ingest.BatchReport, error) {
	if len(codes) == 0 {
		return nil, errors.New("watchlist is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	end := model.Day(s.Now())
	start := end.AddDate(0, 0, -s.HistoryDays)
	s.log.WithFields(logrus.Fields{
		"codes": len(codes),
		"start": start.Format(model.DateLayout),
		"end":   end.Format(model.DateLayout),
	}).Info("running daily ingest")

	report, err := s.Runner.Run(ctx, codes, start, end)
	if err != nil {
		s.trySend(fmt.Sprintf("❌ 日线入库启动失败: %v", err))
		return nil, err
	}
	if len(report.Failed) > 0 {
		s.trySend(notifier.FormatBatchReport(report))
	}
	return report, nil
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	args := fields[1:]
	switch fields[0] {
	case "/context", "查看":
		if len(args) != 1 || s.Contexts == nil {
			return "用法: /context <代码>"
		}
		ac, err := s.Contexts.Context(ctx, args[0])
		if errors.Is(err, analysis.ErrNoData) {
			return fmt.Sprintf("%s 暂无数据", args[0])
		}
		if err != nil {
			return fmt.Sprintf("❌ 查询失败: %v", err)
		}
		return notifier.FormatContext(ac)
	case "/ingest", "入库":
		codes := args
		if len(codes) == 0 {
			codes = s.Watchlist
		}
		report, err := s.run(ctx, codes)
		if err != nil {
			return fmt.Sprintf("❌ 入库失败: %v", err)
		}
		return notifier.FormatBatchReport(report)
	default:
		return "可用命令:\n• /context <代码>\n• /ingest [代码...]"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.WithError(err).Error("send notification")
	}
}
