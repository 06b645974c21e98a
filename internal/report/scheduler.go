package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
)

// Notifier рассылает сообщения в чаты.
type Notifier interface {
	Send(ctx context.Context, chatIDs []int64, messages []string) error
}

// Scheduler по расписанию stats_report_cron рассылает отчёт в
// stats_report_chat_ids.
type Scheduler struct {
	cron     *cron.Cron
	stats    *Service
	notifier Notifier
	cfg      config.Provider
	logger   *slog.Logger
}

// NewScheduler создаёт планировщик в часовом поясе loc.
func NewScheduler(stats *Service, notifier Notifier, cfg config.Provider, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		stats:    stats,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run регистрирует задачу и ждёт отмены ctx. Пустое расписание - ничего
// не делает.
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.push(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("stats report scheduled", "spec", spec)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) push(ctx context.Context) {
	chatIDs := config.Int64s(s.cfg, "stats_report_chat_ids", nil)
	if len(chatIDs) == 0 {
		s.logger.Warn("stats report skipped: no stats_report_chat_ids")
		return
	}

	report, err := s.stats.Report(ctx)
	if err != nil {
		s.logger.Error("build stats report failed", "error", err)
		return
	}
	if err := s.notifier.Send(ctx, chatIDs, []string{report}); err != nil {
		s.logger.Error("send stats report failed", "error", err)
	}
}
