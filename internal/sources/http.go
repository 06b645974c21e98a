package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// yahooPrefix - префикс ссылок Yahoo Japan, который можно подменить через
// yahoo_url_override_base.
const yahooPrefix = "https://news.yahoo.co.jp/"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes ограничивает размер читаемого ответа.
const maxBodyBytes = 8 << 20

// NewHTTPClient создаёт клиента с таймаутом по умолчанию.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// envelope - обёртка ответов API: {"status":"success","data":...}.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// overrideURL подменяет префикс Yahoo Japan на base, если он задан.
func overrideURL(raw, base string) string {
	base = strings.TrimSpace(base)
	if base == "" || !strings.HasPrefix(raw, yahooPrefix) {
		return raw
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(raw, yahooPrefix)
}

// apiURL собирает {base}/{endpoint}?url={target}.
func apiURL(base, endpoint, target string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("api_base_url is not configured")
	}
	return base + endpoint + "?" + url.Values{"url": {target}}.Encode(), nil
}

// getEnvelope выполняет GET и проверяет обёртку. Сетевые сбои и 5xx
// классифицируются как news.ErrTransient, нарушения формата - как
// news.ErrMalformedResponse.
func getEnvelope(ctx context.Context, client *http.Client, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, news.Transient(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, news.Transient(fmt.Errorf("read body: %w", err))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, news.Malformed("decode envelope: %v", err)
	}
	if env.Status != "success" {
		return nil, news.Malformed("status %q: %s", env.Status, env.Message)
	}
	return env.Data, nil
}

// newPageRequest строит запрос к HTML-странице с заголовками браузера.
func newPageRequest(ctx context.Context, pageURL, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	// Без браузерных заголовков часть сайтов отвечает 403.
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("DNT", "1")
	return req, nil
}

func statusError(code int) error {
	err := fmt.Errorf("unexpected status %d", code)
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return news.Transient(err)
	}
	return err
}
