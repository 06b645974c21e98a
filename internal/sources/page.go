package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// PageFetcher читает саму страницу статьи: текст через readability,
// картинку и время публикации из meta-тегов.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher создаёт новый экземпляр.
func NewPageFetcher(client *http.Client) *PageFetcher {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &PageFetcher{client: client}
}

// Fetch скачивает страницу и извлекает из неё DetailContent.
func (p *PageFetcher) Fetch(ctx context.Context, pageURL string) (news.DetailContent, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return news.DetailContent{}, fmt.Errorf("invalid URL: %s", pageURL)
	}

	req, err := newPageRequest(ctx, pageURL, "text/html, application/xhtml+xml, */*")
	if err != nil {
		return news.DetailContent{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return news.DetailContent{}, news.Transient(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return news.DetailContent{}, statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return news.DetailContent{}, news.Transient(fmt.Errorf("read body: %w", err))
	}
	return extractPage(data, parsedURL)
}

func extractPage(data []byte, pageURL *url.URL) (news.DetailContent, error) {
	if len(data) == 0 {
		return news.DetailContent{}, errors.New("HTML data is empty")
	}

	var detail news.DetailContent

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return news.DetailContent{}, fmt.Errorf("extract content: %w", err)
	}
	detail.Body = strings.TrimSpace(article.TextContent)
	if detail.Body == "" {
		return news.DetailContent{}, errors.New("no content extracted from page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		// Текст уже есть, без метаданных можно обойтись.
		return detail, nil
	}

	if image := metaContent(doc, "og:image"); image != "" {
		detail.ImageURL = resolveURL(pageURL, image)
	}

	published := metaContent(doc, "article:published_time")
	if published == "" {
		published, _ = doc.Find("time[datetime]").First().Attr("datetime")
	}
	if published != "" {
		if ts, err := parseTime(published); err == nil {
			detail.PublicationTime = ts
		}
	}
	return detail, nil
}

// metaContent ищет <meta property=...> или <meta name=...>.
func metaContent(doc *goquery.Document, key string) string {
	var value string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if !strings.EqualFold(prop, key) && !strings.EqualFold(name, key) {
			return true
		}
		value = strings.TrimSpace(s.AttrOr("content", ""))
		return value == ""
	})
	return value
}

func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
