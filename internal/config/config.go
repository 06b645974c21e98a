package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/filter"
)

// Значения политики обработки неудачной публикации.
const (
	// PublishFailureRecord - записать статью в леджер без id сообщения; повторов не будет.
	PublishFailureRecord = "record"
	// PublishFailureRetry - не записывать; статья попадёт в следующий цикл.
	PublishFailureRetry = "retry"
)

// Бэкенды обогащения.
const (
	EnrichOpenAI = "openai"
	EnrichGemini = "gemini"
)

type (
	// Root объединяет все настройки бота. Ключи YAML совпадают с ключами,
	// по которым работает Provider.Get.
	Root struct {
		// Источник рейтинга.
		APIBaseURL           string   `yaml:"api_base_url"`
		YahooRankingBaseURLs []string `yaml:"yahoo_ranking_base_urls"`
		YahooURLOverrideBase string   `yaml:"yahoo_url_override_base"`
		FeedURLs             []string `yaml:"feed_urls"`
		PageFallback         bool     `yaml:"page_fallback"`
		HTTPTimeoutSeconds   int      `yaml:"http_timeout_seconds"`

		// Telegram.
		TelegramBotToken  string  `yaml:"telegram_bot_token"`
		TelegramChannelID string  `yaml:"telegram_channel_id"`
		AuthorizedUserIDs []int64 `yaml:"authorized_user_ids"`

		// Обогащение.
		EnrichBackend           string  `yaml:"enrich_backend"`
		EnrichRequestsPerMinute int     `yaml:"enrich_requests_per_minute"`
		OpenAIAPIKey            string  `yaml:"openai_api_key"`
		OpenAIModel             string  `yaml:"openai_model"`
		OpenAIBaseURL           string  `yaml:"openai_base_url"`
		OpenAIMaxTokens         int     `yaml:"openai_max_tokens"`
		OpenAITemperature       float64 `yaml:"openai_temperature"`
		GeminiAPIKey            string  `yaml:"gemini_api_key"`
		GeminiModel             string  `yaml:"gemini_model"`

		// Пайплайн.
		SkipKeywords            []string `yaml:"skip_keywords"`
		PublishFailurePolicy    string   `yaml:"publish_failure_policy"`
		ScheduleIntervalMinutes int      `yaml:"schedule_interval_minutes"`
		WarmupSeconds           int      `yaml:"warmup_seconds"`
		ItemPacingSeconds       int      `yaml:"item_pacing_seconds"`
		DisplayTimezone         string   `yaml:"display_timezone"`

		// Леджер.
		LedgerBackend      string `yaml:"ledger_backend"`
		PostedArticlesFile string `yaml:"posted_articles_file"`
		LedgerSQLitePath   string `yaml:"ledger_sqlite_path"`
		RedisAddr          string `yaml:"redis_addr"`
		RedisPassword      string `yaml:"redis_password"`
		RedisDB            int    `yaml:"redis_db"`
		RedisKey           string `yaml:"redis_key"`

		// Логи.
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`

		// Отчёты.
		ReportListenAddr   string  `yaml:"report_listen_addr"`
		ReportAPIKey       string  `yaml:"report_api_key"`
		StatsReportCron    string  `yaml:"stats_report_cron"`
		StatsReportChatIDs []int64 `yaml:"stats_report_chat_ids"`
	}
)

// Defaults возвращает значения по умолчанию.
func Defaults() Root {
	return Root{
		HTTPTimeoutSeconds:      30,
		OpenAIBaseURL:           "https://api.openai.com/v1",
		OpenAIMaxTokens:         1000,
		OpenAITemperature:       0.7,
		GeminiModel:             "gemini-2.0-flash",
		SkipKeywords:            []string{},
		PublishFailurePolicy:    PublishFailureRecord,
		ScheduleIntervalMinutes: 10,
		WarmupSeconds:           10,
		ItemPacingSeconds:       5,
		DisplayTimezone:         "Asia/Tokyo",
		LedgerBackend:           "json",
		PostedArticlesFile:      "data/posted_articles.json",
		LedgerSQLitePath:        "data/ledger.db",
		RedisKey:                "newsbot:ledger",
		LogLevel:                "DEBUG",
		LogFormat:               "text",
	}
}

// load читает файл конфигурации, накладывает его на значения по умолчанию и
// переменные окружения и проверяет обязательные ключи. Возвращает и
// типизированный Root, и сырую карту всех ключей файла.
func load(path string, getenv func(string) string) (Root, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Root{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnv(&cfg, getenv)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Root{}, nil, err
	}

	// Канонические значения Root перекрывают сырые: Get видит нормализованные
	// ключевые слова, секреты из окружения и значения по умолчанию.
	canonical, err := toMap(cfg)
	if err != nil {
		return Root{}, nil, err
	}
	for k, v := range canonical {
		raw[k] = v
	}
	return cfg, raw, nil
}

func toMap(cfg Root) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return out, nil
}

func (r *Root) normalize() {
	r.SkipKeywords = filter.NormalizeKeywords(r.SkipKeywords)

	r.EnrichBackend = strings.ToLower(strings.TrimSpace(r.EnrichBackend))
	if r.EnrichBackend == "" {
		if r.OpenAIAPIKey != "" {
			r.EnrichBackend = EnrichOpenAI
		} else {
			r.EnrichBackend = EnrichGemini
		}
	}

	r.PublishFailurePolicy = strings.ToLower(strings.TrimSpace(r.PublishFailurePolicy))
	r.LedgerBackend = strings.ToLower(strings.TrimSpace(r.LedgerBackend))
	r.APIBaseURL = strings.TrimRight(strings.TrimSpace(r.APIBaseURL), "/")
}

// Validate проверяет обязательные ключи и допустимые значения.
func (r Root) Validate() error {
	var missing []string
	need := func(key string, empty bool) {
		if empty {
			missing = append(missing, key)
		}
	}

	need("api_base_url", r.APIBaseURL == "")
	need("telegram_bot_token", r.TelegramBotToken == "")
	need("telegram_channel_id", r.TelegramChannelID == "")
	need("yahoo_ranking_base_urls", len(r.YahooRankingBaseURLs) == 0)

	var invalid []string
	switch r.EnrichBackend {
	case EnrichOpenAI:
		need("openai_api_key", r.OpenAIAPIKey == "")
		need("openai_model", r.OpenAIModel == "")
	case EnrichGemini:
		need("gemini_api_key", r.GeminiAPIKey == "")
		need("gemini_model", r.GeminiModel == "")
	default:
		invalid = append(invalid, fmt.Sprintf("enrich_backend=%q", r.EnrichBackend))
	}

	switch r.PublishFailurePolicy {
	case PublishFailureRecord, PublishFailureRetry:
	default:
		invalid = append(invalid, fmt.Sprintf("publish_failure_policy=%q", r.PublishFailurePolicy))
	}

	switch r.LedgerBackend {
	case "json", "sqlite", "redis":
	default:
		invalid = append(invalid, fmt.Sprintf("ledger_backend=%q", r.LedgerBackend))
	}

	if r.DisplayTimezone != "" {
		if _, err := time.LoadLocation(r.DisplayTimezone); err != nil {
			invalid = append(invalid, fmt.Sprintf("display_timezone=%q", r.DisplayTimezone))
		}
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ConfigurationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// Location возвращает часовой пояс для отображения времени публикации.
func (r Root) Location() *time.Location {
	loc, err := time.LoadLocation(r.DisplayTimezone)
	if err != nil || r.DisplayTimezone == "" {
		return time.UTC
	}
	return loc
}

// HTTPTimeout возвращает таймаут HTTP-клиентов.
func (r Root) HTTPTimeout() time.Duration {
	if r.HTTPTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.HTTPTimeoutSeconds) * time.Second
}

// ConfigurationError - в конфигурации нет обязательных ключей или есть
// недопустимые значения. При старте фатальна.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}
