package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/counters"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

const (
	defaultIntervalMinutes = 10
	defaultWarmupSeconds   = 10
	defaultPacingSeconds   = 5
)

// CycleResult - итог одного цикла.
type CycleResult struct {
	ID         string
	Candidates int
	New        int
	Items      []ItemResult
	Err        error
}

// Orchestrator запускает циклы по расписанию: рейтинг, дельта против
// леджера, последовательная обработка новых статей.
type Orchestrator struct {
	source   CandidateSource
	ledger   Ledger
	counters Counters
	pipeline *Pipeline
	cfg      config.Provider
	clock    Clock
	sleep    SleepFunc
	logger   *slog.Logger
}

// NewOrchestrator создаёт оркестратор и пайплайн из одних зависимостей.
func NewOrchestrator(deps PipelineDeps) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Logger = logger

	return &Orchestrator{
		source:   deps.Source,
		ledger:   deps.Ledger,
		counters: deps.Counters,
		pipeline: NewPipeline(deps),
		cfg:      deps.Config,
		clock:    clock,
		sleep:    sleep,
		logger:   logger,
	}
}

// Run ждёт warmup_seconds и крутит циклы до отмены ctx. Паника внутри
// цикла логируется и не останавливает цикл планировщика.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.source == nil || o.pipeline.validateDeps() != nil {
		return ErrNotConfigured
	}

	warmup := time.Duration(config.Int(o.cfg, "warmup_seconds", defaultWarmupSeconds)) * time.Second
	o.logger.Info("scheduler starting", "warmup", warmup)
	if err := o.sleep(ctx, warmup); err != nil {
		return nil
	}

	for {
		o.safeCycle(ctx)

		minutes := config.Int(o.cfg, "schedule_interval_minutes", defaultIntervalMinutes)
		if minutes <= 0 {
			minutes = defaultIntervalMinutes
		}
		interval := time.Duration(minutes) * time.Minute
		o.logger.Info("next cycle scheduled", "in", interval, "at", o.clock().Add(interval).Format(time.RFC3339))
		if err := o.sleep(ctx, interval); err != nil {
			o.logger.Info("scheduler stopped")
			return nil
		}
	}
}

func (o *Orchestrator) safeCycle(ctx context.Context) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			res.Err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return o.RunCycle(ctx)
}

// RunCycle выполняет один цикл. Ошибки отдельных статей не прерывают
// цикл; прерывают его только сбой получения рейтинга и нечитаемый леджер.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{ID: uuid.NewString()}
	logger := o.logger.With("cycle_id", res.ID)
	start := o.clock()
	logger.Info("cycle started")

	candidates, err := o.source.FetchRanking(ctx)
	if err == nil && candidates == nil {
		err = news.Malformed("ranking returned no data")
	}
	if err != nil {
		o.counters.Increment(counters.FetchFail)
		logger.Error("fetch ranking failed, cycle aborted", "kind", news.Kind(err), "error", err)
		res.Err = fmt.Errorf("fetch ranking: %w", err)
		return res
	}
	o.counters.Increment(counters.FetchSuccess)
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		logger.Info("ranking is empty, nothing to do")
		return res
	}

	known, err := o.ledger.Load(ctx)
	if err != nil {
		if !errors.Is(err, news.ErrCorruptState) {
			logger.Error("ledger load failed, cycle aborted", "error", err)
			res.Err = fmt.Errorf("load ledger: %w", err)
			return res
		}
		logger.Warn("ledger is corrupt, continuing with what could be read", "records", len(known), "error", err)
	}

	fresh := delta(candidates, known)
	res.New = len(fresh)
	logger.Info("ranking fetched", "candidates", len(candidates), "new", len(fresh))

	pacing := time.Duration(config.Int(o.cfg, "item_pacing_seconds", defaultPacingSeconds)) * time.Second
	for i, item := range fresh {
		if ctx.Err() != nil {
			break
		}
		itemRes := o.pipeline.Process(ctx, item)
		res.Items = append(res.Items, itemRes)
		if itemRes.Outcome == OutcomeCanceled {
			break
		}
		if i < len(fresh)-1 && pacing > 0 {
			if err := o.sleep(ctx, pacing); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		res.Err = ctx.Err()
		logger.Info("cycle interrupted", "processed", len(res.Items), "new", len(fresh))
		return res
	}
	logger.Info("cycle finished", "processed", len(res.Items), "took", o.clock().Sub(start).Round(time.Millisecond))
	return res
}

// delta оставляет кандидатов без записи в леджере, в порядке рейтинга.
func delta(candidates []news.CandidateItem, known map[string]news.LedgerRecord) []news.CandidateItem {
	out := make([]news.CandidateItem, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		if _, ok := known[item.Identity]; ok {
			continue
		}
		if _, ok := seen[item.Identity]; ok {
			continue
		}
		seen[item.Identity] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Sleep ждёт d или отмены ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
