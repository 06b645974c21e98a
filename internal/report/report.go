// Package report собирает статистику бота и отдаёт её в Telegram, по HTTP
// и по расписанию.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/counters"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/formatter"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/ledger"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// Stats - снимок статистики: счётчики с момента запуска или сброса и
// агрегаты леджера за всё время.
type Stats struct {
	Runtime     counters.Snapshot `json:"runtime"`
	Persistent  news.LedgerTotals `json:"persistent"`
	Since       time.Time         `json:"since"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Service читает счётчики и леджер, не блокируя оркестратор.
type Service struct {
	counters *counters.Counters
	store    ledger.Store
	now      func() time.Time

	mu    sync.Mutex
	since time.Time
}

// NewService создаёт новый экземпляр.
func NewService(c *counters.Counters, store ledger.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		counters: c,
		store:    store,
		now:      now,
		since:    now(),
	}
}

// Stats возвращает текущий снимок.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	totals, err := ledger.Totals(ctx, s.store)
	if err != nil {
		return Stats{}, fmt.Errorf("ledger totals: %w", err)
	}
	s.mu.Lock()
	since := s.since
	s.mu.Unlock()
	return Stats{
		Runtime:     s.counters.Snapshot(),
		Persistent:  totals,
		Since:       since,
		GeneratedAt: s.now(),
	}, nil
}

// Report возвращает отчёт в MarkdownV2.
func (s *Service) Report(ctx context.Context) (string, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return "", err
	}
	return Render(stats), nil
}

// Reset обнуляет счётчики.
func (s *Service) Reset() {
	s.counters.Reset()
	s.mu.Lock()
	s.since = s.now()
	s.mu.Unlock()
}

// Render форматирует статистику для Telegram.
func Render(stats Stats) string {
	esc := formatter.EscapeMarkdownV2
	line := func(format string, args ...any) string {
		return esc(fmt.Sprintf(format, args...))
	}
	n := func(v int64) string { return humanize.Comma(v) }

	runtimeHeader := "Runtime (Since Last Start/Reset):"
	if !stats.Since.IsZero() {
		runtimeHeader = fmt.Sprintf("Runtime (Since Last Start/Reset, %s):", humanize.RelTime(stats.Since, stats.GeneratedAt, "ago", "from now"))
	}

	lines := []string{
		"*📊 Bot Statistics*",
		"",
		"*" + esc(runtimeHeader) + "*",
		line("  - Fetches: %s success, %s fail", n(stats.Runtime.FetchSuccess), n(stats.Runtime.FetchFail)),
		line("  - Translations: %s success, %s fail", n(stats.Runtime.EnrichSuccess), n(stats.Runtime.EnrichFail)),
		line("  - Posts: %s success, %s fail", n(stats.Runtime.PublishSuccess), n(stats.Runtime.PublishFail)),
		line("  - Skipped (Keywords): %s", n(stats.Runtime.SkipKeyword)),
		"",
		"*" + esc("Persistent Data (All Time):") + "*",
		line("  - Total Articles in DB: %s", n(int64(stats.Persistent.Total))),
		line("  - Successfully Posted: %s", n(int64(stats.Persistent.Published))),
		line("  - Skipped (Keywords) in DB: %s", n(int64(stats.Persistent.Skipped))),
	}
	return strings.Join(lines, "\n")
}
