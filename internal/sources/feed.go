package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// maxItemsPerFeed - сколько первых (обычно самых свежих) записей ленты брать.
const maxItemsPerFeed = 100

// FeedSource загружает кандидатов из RSS/Atom-лент.
type FeedSource struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewFeedSource создаёт новый экземпляр.
func NewFeedSource(client *http.Client) *FeedSource {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &FeedSource{
		client: client,
		parser: gofeed.NewParser(),
	}
}

// Fetch скачивает и разбирает одну ленту.
func (f *FeedSource) Fetch(ctx context.Context, feedURL string) ([]news.CandidateItem, error) {
	req, err := newPageRequest(ctx, feedURL, "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, news.Transient(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	// 403 и прочие 4xx повторять бесполезно.
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode)
	}

	feed, err := f.parser.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, news.Malformed("parse feed: %v", err)
	}

	entries := feed.Items
	if len(entries) > maxItemsPerFeed {
		entries = entries[:maxItemsPerFeed]
	}

	items := make([]news.CandidateItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		items = append(items, news.CandidateItem{
			Identity: link,
			Title:    strings.TrimSpace(entry.Title),
		})
	}
	return items, nil
}
