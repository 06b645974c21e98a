package formatter

import "strings"

// markdownV2Special - символы, которые MarkdownV2 требует экранировать.
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 экранирует текст для parse_mode=MarkdownV2.
func EscapeMarkdownV2(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		sb.WriteString(escapeRune(r))
	}
	return sb.String()
}

// EscapeLinkURL экранирует URL внутри (...) инлайн-ссылки.
func EscapeLinkURL(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(s)
}

func escapeRune(r rune) string {
	if strings.ContainsRune(markdownV2Special, r) {
		return `\` + string(r)
	}
	return string(r)
}

// UTF16Len считает длину так же, как Telegram: в единицах UTF-16.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
