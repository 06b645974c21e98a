package config

import "strings"

// Переменные окружения с секретами. Если заданы, они важнее файла.
const (
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvReportAPIKey     = "REPORT_API_KEY"
	EnvRedisPassword    = "REDIS_PASSWORD"
)

// applyEnv накладывает секреты из окружения на конфигурацию.
func applyEnv(cfg *Root, getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}

	set(&cfg.TelegramBotToken, EnvTelegramBotToken)
	set(&cfg.OpenAIAPIKey, EnvOpenAIAPIKey)
	set(&cfg.GeminiAPIKey, EnvGeminiAPIKey)
	set(&cfg.ReportAPIKey, EnvReportAPIKey)
	set(&cfg.RedisPassword, EnvRedisPassword)
}
