package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Provider - источник живой конфигурации. Каждый вызов Get видит последнее
// успешно загруженное значение; def возвращается, если ключа нет.
type Provider interface {
	Get(key string, def any) any
}

// Store держит текущую конфигурацию файла и перечитывает её по запросу.
type Store struct {
	path   string
	getenv func(string) string
	logger *slog.Logger

	mu       sync.RWMutex
	root     Root
	raw      map[string]any
	onReload []func(Root)
}

var _ Provider = (*Store)(nil)

// Open загружает конфигурацию. Ошибка валидации возвращается как
// *ConfigurationError.
func Open(path string, logger *slog.Logger) (*Store, error) {
	return open(path, os.Getenv, logger)
}

func open(path string, getenv func(string) string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, raw, err := load(path, getenv)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		getenv: getenv,
		logger: logger,
		root:   root,
		raw:    raw,
	}, nil
}

// Path возвращает путь к файлу конфигурации.
func (s *Store) Path() string {
	return s.path
}

// Root возвращает копию текущей типизированной конфигурации.
func (s *Store) Root() Root {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Get реализует Provider.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.raw[key]; ok && v != nil {
		return v
	}
	return def
}

// OnReload регистрирует обработчик успешной перезагрузки.
func (s *Store) OnReload(fn func(Root)) {
	s.mu.Lock()
	s.onReload = append(s.onReload, fn)
	s.mu.Unlock()
}

// Reload перечитывает файл. При ошибке остаются прежние значения.
func (s *Store) Reload() error {
	root, raw, err := load(s.path, s.getenv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.root = root
	s.raw = raw
	handlers := append([]func(Root){}, s.onReload...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(root)
	}
	return nil
}

// LogSummary пишет в лог текущую конфигурацию без секретов.
func (s *Store) LogSummary() {
	r := s.Root()
	s.logger.Info("configuration loaded",
		"path", s.path,
		"ranking_sources", len(r.YahooRankingBaseURLs),
		"feed_sources", len(r.FeedURLs),
		"enrich_backend", r.EnrichBackend,
		"ledger_backend", r.LedgerBackend,
		"skip_keywords", len(r.SkipKeywords),
		"interval_minutes", r.ScheduleIntervalMinutes,
		"publish_failure_policy", r.PublishFailurePolicy,
		"telegram_token", mask(r.TelegramBotToken),
	)
}

func mask(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-3:]
}

// String читает строковый ключ.
func String(p Provider, key, def string) string {
	switch v := p.Get(key, nil).(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return fmt.Sprint(v)
	}
}

// Int читает целочисленный ключ.
func Int(p Provider, key string, def int) int {
	switch v := p.Get(key, nil).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float читает ключ с плавающей точкой.
func Float(p Provider, key string, def float64) float64 {
	switch v := p.Get(key, nil).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Bool читает логический ключ.
func Bool(p Provider, key string, def bool) bool {
	if v, ok := p.Get(key, nil).(bool); ok {
		return v
	}
	return def
}

// Strings читает список строк.
func Strings(p Provider, key string, def []string) []string {
	switch v := p.Get(key, nil).(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return def
}

// Int64s читает список целых (например, id пользователей).
func Int64s(p Provider, key string, def []int64) []int64 {
	switch v := p.Get(key, nil).(type) {
	case []int64:
		return append([]int64(nil), v...)
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			case uint64:
				out = append(out, int64(n))
			case string:
				if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
					out = append(out, parsed)
				}
			}
		}
		return out
	}
	return def
}

// Static - неизменяемый Provider поверх карты. Удобен в тестах и утилитах.
type Static map[string]any

// Get реализует Provider.
func (s Static) Get(key string, def any) any {
	if v, ok := s[key]; ok && v != nil {
		return v
	}
	return def
}
