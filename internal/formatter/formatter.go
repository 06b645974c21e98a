package formatter

import (
	"strings"
	"time"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

const (
	// TelegramMaxMessageLength - максимальная длина текстового сообщения в Telegram.
	TelegramMaxMessageLength = 4096
	// TelegramMaxCaptionLength - максимальная длина подписи к фото.
	TelegramMaxCaptionLength = 1024

	// TruncationSuffix добавляется к обрезанному телу статьи.
	TruncationSuffix = "(未完，请看原文)"
	// SourceLinkLabel - текст ссылки на оригинал.
	SourceLinkLabel = "原文链接"

	timeLayout   = "2006-01-02 15:04"
	titleBodySep = "\n\n"
)

// Post - готовая к публикации статья в MarkdownV2. Заголовок и тело
// передаются раздельно: публикатор сам решает, как их склеить или разбить.
type Post struct {
	// Title - экранированный заголовок в жирном начертании.
	Title string
	// Body - тело, ссылка на оригинал, время публикации и теги.
	Body     string
	ImageURL string

	// Truncated - тело обрезано до лимита.
	Truncated bool
	// BodyDropped - тело выброшено целиком: не хватило места даже под суффикс.
	BodyDropped bool
}

// Text склеивает заголовок и тело в одно сообщение.
func (p Post) Text() string {
	return JoinTitleBody(p.Title, p.Body)
}

// JoinTitleBody - единый формат склейки заголовка и тела.
func JoinTitleBody(title, body string) string {
	if body == "" {
		return title
	}
	return title + titleBodySep + body
}

// Formatter собирает сообщения для канала.
type Formatter struct {
	limit    int
	location *time.Location
}

// New создаёт форматтер. limit <= 0 означает лимит Telegram, loc == nil - UTC.
func New(limit int, loc *time.Location) *Formatter {
	if limit <= 0 {
		limit = TelegramMaxMessageLength
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{limit: limit, location: loc}
}

// Format строит сообщение. Длина Title + "\n\n" + Body не превышает лимит,
// если только заголовок, ссылка и теги сами по себе в него не помещаются:
// тогда тело выбрасывается, а остальное не трогается.
func (f *Formatter) Format(item news.CandidateItem, detail news.DetailContent, enriched news.EnrichedContent) Post {
	post := Post{
		Title:    "*" + EscapeMarkdownV2(enriched.TranslatedTitle) + "*",
		ImageURL: detail.ImageURL,
	}

	var tail strings.Builder
	tail.WriteString("[" + EscapeMarkdownV2(SourceLinkLabel) + "](" + EscapeLinkURL(item.Identity) + ")")
	if detail.HasPublicationTime() {
		stamp := detail.PublicationTime.In(f.location).Format(timeLayout)
		tail.WriteString("\n_" + EscapeMarkdownV2(stamp) + "_")
	}
	if tags := RenderTags(enriched.Tags); tags != "" {
		tail.WriteString("\n\n" + tags)
	}
	tailText := tail.String()

	body := strings.TrimSpace(enriched.TranslatedBody)
	if body == "" {
		post.Body = tailText
		return post
	}

	fixed := UTF16Len(post.Title) + UTF16Len(titleBodySep) + UTF16Len(tailText)
	escaped := EscapeMarkdownV2(body)
	full := escaped + "\n\n"
	if fixed+UTF16Len(full) <= f.limit {
		post.Body = full + tailText
		return post
	}

	suffix := EscapeMarkdownV2(TruncationSuffix)
	room := f.limit - fixed - UTF16Len(suffix) - UTF16Len("\n\n")
	if room <= 0 {
		post.Body = tailText
		post.BodyDropped = true
		return post
	}

	post.Body = truncateEscaped(body, room) + suffix + "\n\n" + tailText
	post.Truncated = true
	return post
}

// RenderTags нормализует теги к виду "#тег" и экранирует их.
func RenderTags(tags []string) string {
	rendered := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		tag = strings.Join(strings.Fields(tag), "_")
		if tag == "" {
			continue
		}
		rendered = append(rendered, EscapeMarkdownV2("#"+tag))
	}
	return strings.Join(rendered, " ")
}

// truncateEscaped экранирует raw и обрезает результат так, чтобы он занял не
// больше room единиц UTF-16. Пары "\x" и суррогатные пары не разрываются.
func truncateEscaped(raw string, room int) string {
	var sb strings.Builder
	used := 0
	for _, r := range raw {
		piece := escapeRune(r)
		n := UTF16Len(piece)
		if used+n > room {
			break
		}
		sb.WriteString(piece)
		used += n
	}
	return sb.String()
}
