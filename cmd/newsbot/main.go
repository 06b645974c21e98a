package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/app"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/counters"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/enrich"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/formatter"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/ledger"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/logging"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/report"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/sources"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/telegram"
)

// options - параметры командной строки.
type options struct {
	Config   string `long:"config" short:"c" env:"NEWSBOT_CONFIG" default:"config.yaml" description:"Path to the YAML configuration file"`
	LogLevel string `long:"log-level" env:"NEWSBOT_LOG_LEVEL" description:"Override log_level from the configuration"`
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

	if err := run(opts); err != nil {
		slog.Error("newsbot stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// Логгер до загрузки конфигурации: уровень уточняется после.
	logger, level := logging.New(opts.LogLevel, "text", os.Stdout)
	slog.SetDefault(logger)

	cfg, err := config.Open(opts.Config, logger)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Error("invalid configuration", "missing", cfgErr.Missing, "invalid", cfgErr.Invalid)
		}
		return fmt.Errorf("load configuration: %w", err)
	}
	root := cfg.Root()

	logger, level = logging.New(pick(opts.LogLevel, root.LogLevel), root.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	cfg.LogSummary()
	cfg.OnReload(func(r config.Root) {
		if opts.LogLevel == "" {
			level.Set(logging.ParseLevel(r.LogLevel))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openLedger(ctx, root, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := newGenerator(ctx, root)
	if err != nil {
		return err
	}
	enricher := enrich.New(gen, root.EnrichRequestsPerMinute, logger.With("component", "enrich"))

	bot, err := telegram.NewClient(root.TelegramBotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	httpClient := sources.NewHTTPClient(root.HTTPTimeout())
	rankings := sources.NewRankingClient(cfg, httpClient, sources.NewFeedSource(httpClient), logger.With("component", "ranking"))
	details := sources.NewDetailFetcher(
		sources.NewArticleClient(cfg, httpClient, logger.With("component", "article")),
		sources.NewPageFetcher(httpClient),
		cfg,
		logger.With("component", "article"),
	)

	stats := counters.New(logger)
	sender := telegram.NewSender(bot, logger.With("component", "telegram"))
	publisher := telegram.NewPublisher(sender, cfg, logger.With("component", "publisher"))
	reports := report.NewService(stats, store, nil)

	orchestrator := app.NewOrchestrator(app.PipelineDeps{
		Source:    rankings,
		Details:   details,
		Enricher:  enricher,
		Formatter: formatter.New(formatter.TelegramMaxMessageLength, root.Location()),
		Publisher: publisher,
		Ledger:    store,
		Counters:  stats,
		Config:    cfg,
		Logger:    logger,
	})
	listener := telegram.NewCommandListener(bot, sender, reports, cfg, logger.With("component", "commands"))
	scheduler := report.NewScheduler(reports, sender, cfg, root.Location(), logger.With("component", "report"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orchestrator.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return cfg.Watch(gctx, config.DefaultReloadDebounce) })
	g.Go(func() error { return scheduler.Run(gctx, root.StatsReportCron) })
	if root.ReportListenAddr != "" {
		server := report.NewServer(reports, cfg, logger.With("component", "http"))
		g.Go(func() error { return server.Run(gctx, root.ReportListenAddr) })
	}

	logger.Info("newsbot started", "config", cfg.Path(), "ledger_backend", root.LedgerBackend)
	err = g.Wait()
	logger.Info("newsbot shutting down")
	return err
}

func openLedger(ctx context.Context, root config.Root, logger *slog.Logger) (ledger.Store, error) {
	path := root.PostedArticlesFile
	if root.LedgerBackend == ledger.BackendSQLite {
		path = root.LedgerSQLitePath
	}
	store, err := ledger.Open(ctx, ledger.Options{
		Backend:       root.LedgerBackend,
		Path:          path,
		RedisAddr:     root.RedisAddr,
		RedisPassword: root.RedisPassword,
		RedisDB:       root.RedisDB,
		RedisKey:      root.RedisKey,
		Logger:        logger.With("component", "ledger"),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("ledger opened", "backend", root.LedgerBackend)
	return store, nil
}

func newGenerator(ctx context.Context, root config.Root) (enrich.Generator, error) {
	switch root.EnrichBackend {
	case config.EnrichGemini:
		sdk, err := enrich.NewGeminiSDK(ctx, root.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return enrich.NewGeminiGenerator(sdk, root.GeminiModel), nil
	default:
		return enrich.NewOpenAIClient(enrich.OpenAIConfig{
			BaseURL:     root.OpenAIBaseURL,
			APIKey:      root.OpenAIAPIKey,
			Model:       root.OpenAIModel,
			MaxTokens:   root.OpenAIMaxTokens,
			Temperature: root.OpenAITemperature,
			Timeout:     root.HTTPTimeout() * 2,
		}), nil
	}
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
