package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// RankingClient собирает кандидатов со страниц рейтинга Yahoo Japan через
// API-агрегатор и, если заданы feed_urls, из RSS/Atom-лент.
type RankingClient struct {
	cfg    config.Provider
	client *http.Client
	feeds  *FeedSource
	logger *slog.Logger
}

// NewRankingClient создаёт новый экземпляр. feeds может быть nil.
func NewRankingClient(cfg config.Provider, client *http.Client, feeds *FeedSource, logger *slog.Logger) *RankingClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingClient{
		cfg:    cfg,
		client: client,
		feeds:  feeds,
		logger: logger,
	}
}

// FetchRanking возвращает кандидатов всех источников в порядке конфигурации,
// без повторов по ссылке. Если не ответил ни один источник, возвращает
// nil и ошибку; пустой, но валидный результат - это не ошибка.
func (c *RankingClient) FetchRanking(ctx context.Context) ([]news.CandidateItem, error) {
	base := config.String(c.cfg, "api_base_url", "")
	override := config.String(c.cfg, "yahoo_url_override_base", "")
	rankingURLs := config.Strings(c.cfg, "yahoo_ranking_base_urls", nil)
	var feedURLs []string
	if c.feeds != nil {
		feedURLs = config.Strings(c.cfg, "feed_urls", nil)
	}

	if len(rankingURLs)+len(feedURLs) == 0 {
		c.logger.Warn("no candidate sources configured")
		return []news.CandidateItem{}, nil
	}

	items := make([]news.CandidateItem, 0)
	seen := make(map[string]struct{})
	add := func(batch []news.CandidateItem) int {
		added := 0
		for _, item := range batch {
			if _, ok := seen[item.Identity]; ok {
				continue
			}
			seen[item.Identity] = struct{}{}
			items = append(items, item)
			added++
		}
		return added
	}

	var errs []error
	succeeded := 0

	for _, rankingURL := range rankingURLs {
		target := overrideURL(rankingURL, override)
		batch, err := c.fetchRankingPage(ctx, base, target)
		if err != nil {
			c.logger.Error("fetch ranking failed", "url", target, "kind", news.Kind(err), "error", err)
			errs = append(errs, fmt.Errorf("ranking %s: %w", target, err))
			continue
		}
		succeeded++
		c.logger.Debug("ranking fetched", "url", target, "items", len(batch), "new", add(batch))
	}

	for _, feedURL := range feedURLs {
		batch, err := c.feeds.Fetch(ctx, feedURL)
		if err != nil {
			// Ошибка одной ленты не мешает остальным.
			c.logger.Error("fetch feed failed", "url", feedURL, "kind", news.Kind(err), "error", err)
			errs = append(errs, fmt.Errorf("feed %s: %w", feedURL, err))
			continue
		}
		succeeded++
		c.logger.Debug("feed fetched", "url", feedURL, "items", len(batch), "new", add(batch))
	}

	if succeeded == 0 {
		return nil, errors.Join(errs...)
	}

	c.logger.Info("candidates fetched", "sources", succeeded, "failed", len(errs), "items", len(items))
	return items, nil
}

func (c *RankingClient) fetchRankingPage(ctx context.Context, base, target string) ([]news.CandidateItem, error) {
	endpoint, err := apiURL(base, "/yahoo/ranking", target)
	if err != nil {
		return nil, err
	}
	data, err := getEnvelope(ctx, c.client, endpoint)
	if err != nil {
		return nil, err
	}
	return parseRanking(data, c.logger)
}

type rankingEntry struct {
	Link  string `json:"link"`
	Title string `json:"title"`
}

func parseRanking(data json.RawMessage, logger *slog.Logger) ([]news.CandidateItem, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return nil, news.Malformed("ranking data is not a list")
	}

	items := make([]news.CandidateItem, 0, len(entries))
	for _, raw := range entries {
		var entry rankingEntry
		if err := json.Unmarshal(raw, &entry); err != nil || strings.TrimSpace(entry.Link) == "" {
			logger.Warn("skipping invalid ranking entry", "entry", string(raw))
			continue
		}
		items = append(items, news.CandidateItem{
			Identity: strings.TrimSpace(entry.Link),
			Title:    strings.TrimSpace(entry.Title),
		})
	}
	return items, nil
}
