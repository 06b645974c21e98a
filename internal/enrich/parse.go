package enrich

import (
	"encoding/json"
	"strings"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// ParseResponse проверяет ответ модели и переводит его в news.EnrichedContent.
// Любое отклонение от формата - news.ErrMalformedResponse.
func ParseResponse(raw string) (news.EnrichedContent, error) {
	text := extractJSON(raw)
	if text == "" {
		return news.EnrichedContent{}, news.Malformed("response is not a JSON object: %q", preview(raw, 120))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return news.EnrichedContent{}, news.Malformed("decode response: %v", err)
	}

	var out news.EnrichedContent

	if err := decodeString(fields, "translated_title", &out.TranslatedTitle); err != nil {
		return news.EnrichedContent{}, err
	}
	out.TranslatedTitle = strings.TrimSpace(out.TranslatedTitle)
	if out.TranslatedTitle == "" {
		return news.EnrichedContent{}, news.Malformed("translated_title is empty")
	}

	if err := decodeString(fields, "translated_body", &out.TranslatedBody); err != nil {
		return news.EnrichedContent{}, err
	}

	tagsRaw, ok := fields["hashtags"]
	if !ok {
		tagsRaw, ok = fields["tags"]
	}
	if !ok {
		return news.EnrichedContent{}, news.Malformed("hashtags missing")
	}
	var tags []string
	if err := json.Unmarshal(tagsRaw, &tags); err != nil || tags == nil {
		return news.EnrichedContent{}, news.Malformed("hashtags is not a list of strings")
	}
	out.Tags = make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}

	return out, nil
}

func decodeString(fields map[string]json.RawMessage, key string, dst *string) error {
	v, ok := fields[key]
	if !ok {
		return news.Malformed("%s missing", key)
	}
	if err := json.Unmarshal(v, dst); err != nil || string(v) == "null" {
		return news.Malformed("%s is not a string", key)
	}
	return nil
}

// extractJSON вынимает JSON-объект из ответа: снимает markdown-обёртку
// ```json ... ``` и отрезает текст вокруг фигурных скобок.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last < first {
		return ""
	}
	return text[first : last+1]
}
