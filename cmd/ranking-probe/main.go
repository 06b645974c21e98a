// Команда ranking-probe получает текущий рейтинг и, по желанию, тело одной
// статьи, и печатает результат в YAML. Ничего не публикует и не пишет в
// леджер: удобно для проверки источников и прокси перед запуском бота.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/logging"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/sources"
)

type options struct {
	APIBaseURL   string   `long:"api-base-url" env:"API_BASE_URL" required:"true" description:"Base URL of the ranking/article API"`
	RankingURLs  []string `long:"ranking-url" description:"Yahoo ranking page URL (repeatable)"`
	FeedURLs     []string `long:"feed" description:"RSS/Atom feed URL (repeatable)"`
	OverrideBase string   `long:"override-base" description:"Replacement for https://news.yahoo.co.jp in request URLs"`
	PageFallback bool     `long:"page-fallback" description:"Extract the body from the article page when the API fails"`
	Detail       int      `long:"detail" default:"0" description:"Also fetch the body of the N-th candidate (1-based)"`
	Timeout      int      `long:"timeout" default:"30" description:"HTTP timeout in seconds"`
	Verbose      bool     `short:"v" long:"verbose" description:"Debug logging to stderr"`
}

type probeResult struct {
	Candidates []news.CandidateItem `yaml:"candidates"`
	Detail     *probeDetail         `yaml:"detail,omitempty"`
}

type probeDetail struct {
	Link            string `yaml:"link"`
	PublicationTime string `yaml:"publication_time,omitempty"`
	ImageURL        string `yaml:"image_url,omitempty"`
	Body            string `yaml:"body"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "ranking-probe: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, _ := logging.New(level, "text", os.Stderr)

	cfg := config.Static{
		"api_base_url":            opts.APIBaseURL,
		"yahoo_ranking_base_urls": opts.RankingURLs,
		"feed_urls":               opts.FeedURLs,
		"yahoo_url_override_base": opts.OverrideBase,
		"page_fallback":           opts.PageFallback,
	}
	client := sources.NewHTTPClient(time.Duration(opts.Timeout) * time.Second)

	candidates, err := sources.NewRankingClient(cfg, client, sources.NewFeedSource(client), logger).FetchRanking(ctx)
	if err != nil {
		return fmt.Errorf("fetch ranking (%s): %w", news.Kind(err), err)
	}
	out := probeResult{Candidates: candidates}

	if opts.Detail > 0 {
		if opts.Detail > len(candidates) {
			return fmt.Errorf("--detail %d: only %d candidates", opts.Detail, len(candidates))
		}
		link := candidates[opts.Detail-1].Identity
		fetcher := sources.NewDetailFetcher(
			sources.NewArticleClient(cfg, client, logger),
			sources.NewPageFetcher(client),
			cfg,
			logger,
		)
		detail, err := fetcher.FetchDetail(ctx, link)
		if err != nil {
			return fmt.Errorf("fetch detail %s (%s): %w", link, news.Kind(err), err)
		}
		out.Detail = &probeDetail{Link: link, ImageURL: detail.ImageURL, Body: detail.Body}
		if detail.HasPublicationTime() {
			out.Detail.PublicationTime = detail.PublicationTime.Format(time.RFC3339)
		}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}
