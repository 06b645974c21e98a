package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// systemPrompt задаёт формат ответа модели.
const systemPrompt = `You are a helpful assistant tasked with translating Japanese news articles into Simplified Chinese
and generating relevant hashtags.

Input will be a Japanese title and body.
Output MUST be a single JSON object containing the following keys:
- "translated_title": The Chinese translation of the original title.
- "translated_body": The Chinese translation of the original body. Keep the translation concise but informative.
- "hashtags": A JSON array of 3-5 relevant Chinese hashtags (strings starting with '#').

Example Output JSON:
{
  "translated_title": "快讯：东京发生大地震，受灾情况确认中",
  "translated_body": "今日下午3时左右，东京地区发生强烈地震。据气象厅消息，震级推测为7.0级。目前正在确认受灾情况。",
  "hashtags": ["#东京地震", "#日本新闻", "#自然灾害"]
}

Ensure the output is ONLY the JSON object and nothing else. Markdown code fences are NOT allowed.`

// Generator - бэкенд языковой модели: системный промпт + пользовательский текст
// на входе, сырой текст ответа на выходе.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Enricher переводит статью и генерирует теги через Generator.
type Enricher struct {
	gen     Generator
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New создаёт Enricher. requestsPerMinute <= 0 отключает ограничение частоты.
func New(gen Generator, requestsPerMinute int, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enricher{gen: gen, logger: logger}
	if requestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return e
}

// Enrich возвращает перевод заголовка, тела и теги. Ошибки классифицированы:
// news.ErrTransient для сбоев транспорта, news.ErrMalformedResponse для
// ответа не того формата.
func (e *Enricher) Enrich(ctx context.Context, title, body string) (news.EnrichedContent, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return news.EnrichedContent{}, errors.New("empty title and body")
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return news.EnrichedContent{}, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	user := fmt.Sprintf("###Title###: %s\n###Body###: %s", title, body)
	raw, err := e.gen.Generate(ctx, systemPrompt, user)
	if err != nil {
		return news.EnrichedContent{}, fmt.Errorf("generate: %w", err)
	}
	e.logger.Debug("raw enrichment response", "response", preview(raw, 200))

	content, err := ParseResponse(raw)
	if err != nil {
		return news.EnrichedContent{}, err
	}
	return content, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
