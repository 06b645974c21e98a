package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/counters"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/filter"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/formatter"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// SleepFunc ждёт d или отмены ctx.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CandidateSource отдаёт список кандидатов текущего цикла. Ошибка означает,
// что данных нет совсем; пустой список - валидный результат.
type CandidateSource interface {
	FetchRanking(ctx context.Context) ([]news.CandidateItem, error)
}

// DetailFetcher получает тело статьи.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, identity string) (news.DetailContent, error)
}

// Enricher переводит статью и генерирует теги.
type Enricher interface {
	Enrich(ctx context.Context, title, body string) (news.EnrichedContent, error)
}

// Formatter собирает пост с учётом лимитов Telegram.
type Formatter interface {
	Format(item news.CandidateItem, detail news.DetailContent, enriched news.EnrichedContent) formatter.Post
}

// Publisher публикует пост и возвращает id сообщения.
type Publisher interface {
	Publish(ctx context.Context, post formatter.Post) (int64, error)
}

// Ledger - реестр обработанных статей.
type Ledger interface {
	Load(ctx context.Context) (map[string]news.LedgerRecord, error)
	AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error)
}

// Counters считает события этапов.
type Counters interface {
	Increment(name string)
}

// PipelineDeps перечисляет зависимости пайплайна.
type PipelineDeps struct {
	Source    CandidateSource
	Details   DetailFetcher
	Enricher  Enricher
	Formatter Formatter
	Publisher Publisher
	Ledger    Ledger
	Counters  Counters
	Config    config.Provider
	Clock     Clock
	Sleep     SleepFunc
	Logger    *slog.Logger
}

// Stage - состояние обработки одной статьи.
type Stage string

const (
	StageFetchingDetail Stage = "fetching_detail"
	StageEnriching      Stage = "enriching"
	StageFiltering      Stage = "filtering"
	StageFormatting     Stage = "formatting"
	StagePublishing     Stage = "publishing"
	StageRecording      Stage = "recording"
	StageDone           Stage = "done"
	StageAborted        Stage = "aborted"
)

// Outcome - итог обработки статьи.
type Outcome string

const (
	OutcomePublished     Outcome = "published"
	OutcomeSkipped       Outcome = "skipped"
	OutcomePublishFailed Outcome = "publish_failed"
	// OutcomeRetryLater - публикация не удалась, запись не сделана
	// (publish_failure_policy: retry).
	OutcomeRetryLater   Outcome = "retry_later"
	OutcomeEnrichFailed Outcome = "enrich_failed"
	OutcomeCanceled     Outcome = "canceled"
)

// ItemResult описывает, чем закончилась обработка статьи.
type ItemResult struct {
	Identity string
	Stage    Stage
	Outcome  Outcome
	// Recorded - запись добавлена в леджер этим вызовом.
	Recorded  bool
	MessageID *int64
	Err       error
}

// Pipeline обрабатывает одну статью: тело, перевод, фильтр, форматирование,
// публикация, запись в леджер.
type Pipeline struct {
	details   DetailFetcher
	enricher  Enricher
	formatter Formatter
	publisher Publisher
	ledger    Ledger
	counters  Counters
	cfg       config.Provider
	logger    *slog.Logger
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		details:   deps.Details,
		enricher:  deps.Enricher,
		formatter: deps.Formatter,
		publisher: deps.Publisher,
		ledger:    deps.Ledger,
		counters:  deps.Counters,
		cfg:       deps.Config,
		logger:    logger,
	}
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.details == nil,
		p.enricher == nil,
		p.formatter == nil,
		p.publisher == nil,
		p.ledger == nil,
		p.counters == nil,
		p.cfg == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}

// Process проводит статью через все этапы. Ошибки коллабораторов не
// выходят наружу: они превращаются в решение по статье.
func (p *Pipeline) Process(ctx context.Context, item news.CandidateItem) ItemResult {
	res := ItemResult{Identity: item.Identity, Stage: StageFetchingDetail}
	logger := p.logger.With("url", item.Identity)

	if err := p.validateDeps(); err != nil {
		return res.abort(OutcomeCanceled, err)
	}

	detail, err := p.details.FetchDetail(ctx, item.Identity)
	if ctx.Err() != nil {
		return res.abort(OutcomeCanceled, ctx.Err())
	}
	switch {
	case err != nil:
		logger.Warn("detail fetch failed, continuing with empty body", "kind", news.Kind(err), "error", err)
		detail = news.DetailContent{}
	case strings.TrimSpace(detail.Body) == "":
		logger.Warn("article body is empty, continuing with title only")
	}

	res.Stage = StageEnriching
	enriched, err := p.enricher.Enrich(ctx, item.Title, detail.Body)
	if ctx.Err() != nil {
		return res.abort(OutcomeCanceled, ctx.Err())
	}
	if err == nil && strings.TrimSpace(enriched.TranslatedTitle) == "" {
		err = news.Malformed("translated title is empty")
	}
	if err != nil {
		p.counters.Increment(counters.EnrichFail)
		logger.Error("enrichment failed, item left for next cycle", "kind", news.Kind(err), "error", err)
		return res.abort(OutcomeEnrichFailed, err)
	}
	p.counters.Increment(counters.EnrichSuccess)

	res.Stage = StageFiltering
	keywords := config.Strings(p.cfg, "skip_keywords", nil)
	if match, skip := filter.FindMatch(enriched.Tags, keywords); skip {
		p.counters.Increment(counters.SkipKeyword)
		logger.Info("skipping article by keyword", "title", item.Title, "keyword", match.Keyword, "tag", match.Tag)
		res.Outcome = OutcomeSkipped
		return p.record(ctx, res, item, news.LedgerRecord{Title: item.Title, Skipped: true}, logger)
	}

	res.Stage = StageFormatting
	post := p.formatter.Format(item, detail, enriched)
	if post.BodyDropped {
		logger.Warn("message too long even without body, body dropped")
	} else if post.Truncated {
		logger.Warn("message body truncated to fit the limit")
	}

	res.Stage = StagePublishing
	msgID, err := p.publisher.Publish(ctx, post)
	if err != nil {
		if ctx.Err() != nil {
			return res.abort(OutcomeCanceled, ctx.Err())
		}
		p.counters.Increment(counters.PublishFail)
		res.Err = err
		if config.String(p.cfg, "publish_failure_policy", config.PublishFailureRecord) == config.PublishFailureRetry {
			logger.Error("publish failed, item left for next cycle", "error", err)
			return res.abort(OutcomeRetryLater, err)
		}
		logger.Error("publish failed, recording without message id", "error", err)
		res.Outcome = OutcomePublishFailed
		return p.record(ctx, res, item, news.LedgerRecord{Title: item.Title}, logger)
	}

	p.counters.Increment(counters.PublishSuccess)
	res.Outcome = OutcomePublished
	res.MessageID = news.MessageID(msgID)
	logger.Info("article published", "message_id", msgID)
	return p.record(ctx, res, item, news.LedgerRecord{Title: item.Title, PublishMessageID: res.MessageID}, logger)
}

// record записывает решение. Запись не отменяется вместе с ctx: решение уже
// принято, и незаписанная публикация ушла бы в канал повторно.
func (p *Pipeline) record(ctx context.Context, res ItemResult, item news.CandidateItem, rec news.LedgerRecord, logger *slog.Logger) ItemResult {
	res.Stage = StageRecording
	added, err := p.ledger.AppendIfAbsent(context.WithoutCancel(ctx), item.Identity, rec)
	if err != nil {
		// Запись потеряна: статья будет обработана ещё раз.
		logger.Error("ledger append failed", "error", err)
		res.Err = errors.Join(res.Err, err)
	} else if !added {
		logger.Debug("ledger already has a record, kept as is")
	}
	res.Recorded = added
	res.Stage = StageDone
	return res
}

func (r ItemResult) abort(outcome Outcome, err error) ItemResult {
	r.Stage = StageAborted
	r.Outcome = outcome
	r.Err = err
	return r
}
