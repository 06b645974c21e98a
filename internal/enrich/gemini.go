package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// GeminiClient определяет интерфейс для работы с Gemini API.
// Это позволяет легко создавать моки для тестирования.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// GeminiSDK инкапсулирует работу с Gemini API через официальный SDK.
type GeminiSDK struct {
	client *genai.Client
}

var _ GeminiClient = (*GeminiSDK)(nil)

// NewGeminiSDK создаёт клиента Gemini с явно переданным API-ключом.
func NewGeminiSDK(ctx context.Context, apiKey string) (*GeminiSDK, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiSDK{client: client}, nil
}

// GenerateText отправляет один запрос и возвращает текст ответа. Повторов
// нет: необработанная статья вернётся в следующем цикле.
func (c *GeminiSDK) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text, err := result.Text()
	if err != nil {
		return "", news.Malformed("get text from result: %v", err)
	}
	return text, nil
}

// GeminiGenerator приводит GeminiClient к Generator. Системный промпт
// передаётся в начале текста запроса.
type GeminiGenerator struct {
	client GeminiClient
	model  string
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator создаёт генератор поверх клиента Gemini.
func NewGeminiGenerator(client GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// Generate реализует Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	prompt := system + "\n\n" + user
	return g.client.GenerateText(ctx, g.model, prompt)
}

func classifyGeminiError(err error) error {
	errStr := err.Error()
	switch {
	case isQuotaExceededError(errStr) && !isRateLimitError(errStr):
		// Дневная квота: повтор в этом цикле бесполезен, но в следующих поможет.
		return news.Transient(fmt.Errorf("gemini quota exceeded: %w", err))
	case isRateLimitError(errStr), isServiceUnavailableError(errStr), isTemporaryError(errStr):
		return news.Transient(fmt.Errorf("generate content: %w", err))
	case errors.Is(err, context.DeadlineExceeded):
		return news.Transient(err)
	default:
		return fmt.Errorf("generate content: %w", err)
	}
}

// isRateLimitError - 429 / RESOURCE_EXHAUSTED.
func isRateLimitError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "429") ||
		strings.Contains(errLower, "too many requests") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "resource_exhausted")
}

// isServiceUnavailableError - 503, модель перегружена.
func isServiceUnavailableError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "service unavailable") ||
		strings.Contains(errLower, "overloaded")
}

// isTemporaryError - 500, 502, 504.
func isTemporaryError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "500") ||
		strings.Contains(errLower, "502") ||
		strings.Contains(errLower, "504") ||
		strings.Contains(errLower, "internal server error") ||
		strings.Contains(errLower, "bad gateway") ||
		strings.Contains(errLower, "gateway timeout")
}

func isQuotaExceededError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "daily limit")
}
