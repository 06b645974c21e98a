package sources

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// ArticleClient получает тело статьи через API-агрегатор.
type ArticleClient struct {
	cfg    config.Provider
	client *http.Client
	logger *slog.Logger
}

// NewArticleClient создаёт новый экземпляр.
func NewArticleClient(cfg config.Provider, client *http.Client, logger *slog.Logger) *ArticleClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleClient{cfg: cfg, client: client, logger: logger}
}

type articleData struct {
	Body            string `json:"body"`
	PublicationTime string `json:"publication_time"`
	ImageURL        string `json:"image_url"`
}

// FetchDetail запрашивает /yahoo/article?url={identity}.
func (c *ArticleClient) FetchDetail(ctx context.Context, identity string) (news.DetailContent, error) {
	target := overrideURL(identity, config.String(c.cfg, "yahoo_url_override_base", ""))
	endpoint, err := apiURL(config.String(c.cfg, "api_base_url", ""), "/yahoo/article", target)
	if err != nil {
		return news.DetailContent{}, err
	}

	data, err := getEnvelope(ctx, c.client, endpoint)
	if err != nil {
		return news.DetailContent{}, err
	}

	var parsed articleData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return news.DetailContent{}, news.Malformed("article data: %v", err)
	}

	detail := news.DetailContent{
		Body:     strings.TrimSpace(parsed.Body),
		ImageURL: strings.TrimSpace(parsed.ImageURL),
	}
	if parsed.PublicationTime != "" {
		ts, err := parseTime(parsed.PublicationTime)
		if err != nil {
			c.logger.Warn("unparseable publication time", "url", identity, "value", parsed.PublicationTime, "error", err)
		} else {
			detail.PublicationTime = ts
		}
	}
	return detail, nil
}

// parseTime разбирает время публикации. Значения без зоны считаются UTC.
func parseTime(value string) (time.Time, error) {
	return dateparse.ParseIn(strings.TrimSpace(value), time.UTC)
}

// DetailFetcher получает тело статьи через API и, если page_fallback
// включён, добирает его со страницы статьи.
type DetailFetcher struct {
	api    *ArticleClient
	page   *PageFetcher
	cfg    config.Provider
	logger *slog.Logger
}

// NewDetailFetcher создаёт новый экземпляр. page может быть nil.
func NewDetailFetcher(api *ArticleClient, page *PageFetcher, cfg config.Provider, logger *slog.Logger) *DetailFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailFetcher{api: api, page: page, cfg: cfg, logger: logger}
}

// FetchDetail возвращает ошибку только если не сработал ни API, ни страница.
func (d *DetailFetcher) FetchDetail(ctx context.Context, identity string) (news.DetailContent, error) {
	detail, apiErr := d.api.FetchDetail(ctx, identity)
	if apiErr == nil && detail.Body != "" {
		return detail, nil
	}
	if d.page == nil || !config.Bool(d.cfg, "page_fallback", false) {
		return detail, apiErr
	}

	d.logger.Debug("falling back to article page", "url", identity, "api_error", apiErr)
	page, pageErr := d.page.Fetch(ctx, identity)
	if pageErr != nil {
		if apiErr != nil {
			return news.DetailContent{}, errors.Join(apiErr, pageErr)
		}
		d.logger.Warn("page fallback failed", "url", identity, "error", pageErr)
		return detail, nil
	}

	detail.Body = page.Body
	if !detail.HasPublicationTime() {
		detail.PublicationTime = page.PublicationTime
	}
	if detail.ImageURL == "" {
		detail.ImageURL = page.ImageURL
	}
	return detail, nil
}
