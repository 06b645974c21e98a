package filter

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Match описывает сработавшую пару тег/ключевое слово.
type Match struct {
	Tag     string
	Keyword string
}

// ShouldSkip сообщает, нужно ли подавить статью по ключевым словам.
func ShouldSkip(tags, keywords []string) bool {
	_, ok := FindMatch(tags, keywords)
	return ok
}

// FindMatch ищет первое ключевое слово, входящее подстрокой в один из тегов.
// Сравнение без учёта регистра. Перебор: теги снаружи,
// ключевые слова внутри, до первого совпадения.
func FindMatch(tags, keywords []string) (Match, bool) {
	if len(keywords) == 0 || len(tags) == 0 {
		return Match{}, false
	}

	caser := cases.Lower(language.Und)
	normalized := make([]string, 0, len(keywords))
	originals := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		n := normalize(caser, kw)
		if n == "" {
			continue
		}
		normalized = append(normalized, n)
		originals = append(originals, kw)
	}
	if len(normalized) == 0 {
		return Match{}, false
	}

	for _, tag := range tags {
		t := normalize(caser, tag)
		if t == "" {
			continue
		}
		for i, kw := range normalized {
			if strings.Contains(t, kw) {
				return Match{Tag: tag, Keyword: originals[i]}, true
			}
		}
	}
	return Match{}, false
}

// NormalizeKeywords приводит список ключевых слов к виду, в котором он
// хранится в конфигурации: без пробелов по краям, в нижнем регистре, без пустых.
func NormalizeKeywords(keywords []string) []string {
	caser := cases.Lower(language.Und)
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := normalize(caser, kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalize(caser cases.Caser, s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return caser.String(s)
}
