package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/config"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/counters"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/formatter"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/ledger"
	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

type mockSource struct {
	items []news.CandidateItem
	err   error
	calls int
}

func (m *mockSource) FetchRanking(ctx context.Context) ([]news.CandidateItem, error) {
	m.calls++
	return m.items, m.err
}

type mockDetails struct {
	fetchFunc func(ctx context.Context, identity string) (news.DetailContent, error)
}

func (m *mockDetails) FetchDetail(ctx context.Context, identity string) (news.DetailContent, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, identity)
	}
	return news.DetailContent{Body: "本文"}, nil
}

type mockEnricher struct {
	enrichFunc func(ctx context.Context, title, body string) (news.EnrichedContent, error)
	calls      int
}

func (m *mockEnricher) Enrich(ctx context.Context, title, body string) (news.EnrichedContent, error) {
	m.calls++
	if m.enrichFunc != nil {
		return m.enrichFunc(ctx, title, body)
	}
	return news.EnrichedContent{TranslatedTitle: "标题A", TranslatedBody: "正文A", Tags: []string{"#新闻"}}, nil
}

type mockPublisher struct {
	mu          sync.Mutex
	posts       []formatter.Post
	publishFunc func(ctx context.Context, post formatter.Post) (int64, error)
}

func (m *mockPublisher) Publish(ctx context.Context, post formatter.Post) (int64, error) {
	m.mu.Lock()
	m.posts = append(m.posts, post)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, post)
	}
	return 42, nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

type mockLedger struct {
	records map[string]news.LedgerRecord
	loadErr error
	added   []string
}

func (m *mockLedger) Load(ctx context.Context) (map[string]news.LedgerRecord, error) {
	out := make(map[string]news.LedgerRecord, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, m.loadErr
}

func (m *mockLedger) AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error) {
	if m.records == nil {
		m.records = make(map[string]news.LedgerRecord)
	}
	if _, ok := m.records[identity]; ok {
		return false, nil
	}
	m.records[identity] = rec
	m.added = append(m.added, identity)
	return true, nil
}

type testEnv struct {
	source    *mockSource
	details   *mockDetails
	enricher  *mockEnricher
	publisher *mockPublisher
	ledger    Ledger
	counters  *counters.Counters
	sleeps    []time.Duration
	cfg       config.Static
}

func newTestEnv(t *testing.T, keywords ...string) *testEnv {
	t.Helper()
	return &testEnv{
		source:    &mockSource{items: []news.CandidateItem{{Identity: "u1", Title: "速報A"}}},
		details:   &mockDetails{},
		enricher:  &mockEnricher{},
		publisher: &mockPublisher{},
		ledger:    ledger.NewFileStore(filepath.Join(t.TempDir(), "posted.json"), nil),
		counters:  counters.New(nil),
		cfg: config.Static{
			"skip_keywords":          keywords,
			"item_pacing_seconds":    5,
			"publish_failure_policy": config.PublishFailureRecord,
		},
	}
}

func (e *testEnv) deps() PipelineDeps {
	return PipelineDeps{
		Source:    e.source,
		Details:   e.details,
		Enricher:  e.enricher,
		Formatter: formatter.New(formatter.TelegramMaxMessageLength, time.UTC),
		Publisher: e.publisher,
		Ledger:    e.ledger,
		Counters:  e.counters,
		Config:    e.cfg,
		Sleep: func(ctx context.Context, d time.Duration) error {
			e.sleeps = append(e.sleeps, d)
			return ctx.Err()
		},
	}
}

func (e *testEnv) orchestrator() *Orchestrator {
	return NewOrchestrator(e.deps())
}

func loadLedger(t *testing.T, l Ledger) map[string]news.LedgerRecord {
	t.Helper()
	records, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return records
}

func TestRunCycle_PublishAndRerun(t *testing.T) {
	env := newTestEnv(t, "娱乐")
	o := env.orchestrator()

	res := o.RunCycle(context.Background())
	if res.Err != nil {
		t.Fatalf("RunCycle() error = %v", res.Err)
	}
	if len(res.Items) != 1 || res.Items[0].Outcome != OutcomePublished || !res.Items[0].Recorded {
		t.Fatalf("items = %+v", res.Items)
	}

	records := loadLedger(t, env.ledger)
	rec, ok := records["u1"]
	if !ok || rec.Title != "速報A" || rec.Skipped || rec.PublishMessageID == nil || *rec.PublishMessageID != 42 {
		t.Fatalf("ledger = %+v", records)
	}

	post := env.publisher.posts[0]
	if !strings.Contains(post.Title, "标题A") || !strings.Contains(post.Body, "正文A") {
		t.Errorf("post = %+v", post)
	}

	path := env.ledger.(*ledger.FileStore).Path()
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	res = o.RunCycle(context.Background())
	if res.Err != nil || res.New != 0 || len(res.Items) != 0 {
		t.Fatalf("second RunCycle() = %+v", res)
	}
	if env.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", env.publisher.count())
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("ledger changed on rerun:\n%s\n%s", before, after)
	}

	snap := env.counters.Snapshot()
	if snap.FetchSuccess != 2 || snap.EnrichSuccess != 1 || snap.PublishSuccess != 1 {
		t.Errorf("counters = %+v", snap)
	}
}

func TestRunCycle_FreshDataDirectory(t *testing.T) {
	env := newTestEnv(t, "娱乐")
	path := filepath.Join(t.TempDir(), "data", "posted_articles.json")
	env.ledger = ledger.NewFileStore(path, nil)
	o := env.orchestrator()

	res := o.RunCycle(context.Background())
	if res.Err != nil {
		t.Fatalf("RunCycle() error = %v", res.Err)
	}
	if res.New != 1 || env.publisher.count() != 1 {
		t.Fatalf("RunCycle() = %+v, publishes = %d", res, env.publisher.count())
	}
	if _, ok := loadLedger(t, env.ledger)["u1"]; !ok {
		t.Fatal("u1 must be recorded in the new ledger file")
	}

	res = o.RunCycle(context.Background())
	if res.Err != nil || res.New != 0 || env.publisher.count() != 1 {
		t.Errorf("second RunCycle() = %+v, publishes = %d", res, env.publisher.count())
	}
}

func TestRunCycle_SkipByKeyword(t *testing.T) {
	env := newTestEnv(t, "新闻")

	res := env.orchestrator().RunCycle(context.Background())
	if res.Err != nil {
		t.Fatalf("RunCycle() error = %v", res.Err)
	}
	if env.publisher.count() != 0 {
		t.Error("publish must not be called for a skipped item")
	}

	rec := loadLedger(t, env.ledger)["u1"]
	if rec != (news.LedgerRecord{Title: "速報A", Skipped: true}) {
		t.Errorf("ledger record = %+v", rec)
	}
	if got := env.counters.Snapshot().SkipKeyword; got != 1 {
		t.Errorf("skip_keyword = %d, want 1", got)
	}
}

func TestRunCycle_PublishFailure(t *testing.T) {
	tests := []struct {
		name         string
		policy       string
		wantOutcome  Outcome
		wantRecorded bool
	}{
		{name: "record policy forecloses retry", policy: config.PublishFailureRecord, wantOutcome: OutcomePublishFailed, wantRecorded: true},
		{name: "retry policy leaves item", policy: config.PublishFailureRetry, wantOutcome: OutcomeRetryLater, wantRecorded: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cfg["publish_failure_policy"] = tt.policy
			env.publisher.publishFunc = func(ctx context.Context, post formatter.Post) (int64, error) {
				return 0, errors.New("telegram is down")
			}

			res := env.orchestrator().RunCycle(context.Background())
			if len(res.Items) != 1 {
				t.Fatalf("items = %+v", res.Items)
			}
			item := res.Items[0]
			if item.Outcome != tt.wantOutcome || item.Recorded != tt.wantRecorded || item.Err == nil {
				t.Errorf("item = %+v", item)
			}

			rec, ok := loadLedger(t, env.ledger)["u1"]
			if ok != tt.wantRecorded {
				t.Fatalf("ledger has u1 = %v, want %v", ok, tt.wantRecorded)
			}
			if ok && (rec.Skipped || rec.PublishMessageID != nil) {
				t.Errorf("record = %+v, want no message id and no skip", rec)
			}
			if got := env.counters.Snapshot().PublishFail; got != 1 {
				t.Errorf("publish_fail = %d, want 1", got)
			}
		})
	}
}

func TestRunCycle_EnrichFailureLeavesNoRecord(t *testing.T) {
	tests := []struct {
		name   string
		result news.EnrichedContent
		err    error
	}{
		{name: "collaborator error", err: news.Transient(errors.New("503"))},
		{name: "malformed reply", err: news.Malformed("no json")},
		{name: "empty translated title", result: news.EnrichedContent{TranslatedBody: "正文"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.enricher.enrichFunc = func(ctx context.Context, title, body string) (news.EnrichedContent, error) {
				return tt.result, tt.err
			}

			res := env.orchestrator().RunCycle(context.Background())
			if len(res.Items) != 1 || res.Items[0].Outcome != OutcomeEnrichFailed {
				t.Fatalf("items = %+v", res.Items)
			}
			if env.publisher.count() != 0 {
				t.Error("publish must not be called")
			}
			if records := loadLedger(t, env.ledger); len(records) != 0 {
				t.Errorf("ledger = %+v, want empty", records)
			}
			if got := env.counters.Snapshot().EnrichFail; got != 1 {
				t.Errorf("enrich_fail = %d, want 1", got)
			}
		})
	}
}

func TestRunCycle_DetailFailureContinues(t *testing.T) {
	env := newTestEnv(t)
	env.details.fetchFunc = func(ctx context.Context, identity string) (news.DetailContent, error) {
		return news.DetailContent{Body: "stale"}, news.Transient(errors.New("timeout"))
	}
	var gotBody string
	env.enricher.enrichFunc = func(ctx context.Context, title, body string) (news.EnrichedContent, error) {
		gotBody = body
		return news.EnrichedContent{TranslatedTitle: "标题A"}, nil
	}

	res := env.orchestrator().RunCycle(context.Background())
	if len(res.Items) != 1 || res.Items[0].Outcome != OutcomePublished {
		t.Fatalf("items = %+v", res.Items)
	}
	if gotBody != "" {
		t.Errorf("enrich body = %q, want empty after detail failure", gotBody)
	}
}

func TestRunCycle_FetchFailure(t *testing.T) {
	tests := []struct {
		name  string
		items []news.CandidateItem
		err   error
	}{
		{name: "error", err: news.Transient(errors.New("connection refused"))},
		{name: "no data", items: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.source.items, env.source.err = tt.items, tt.err

			res := env.orchestrator().RunCycle(context.Background())
			if res.Err == nil {
				t.Fatal("RunCycle() expected error")
			}
			if env.enricher.calls != 0 {
				t.Error("no item may be processed after fetch failure")
			}
			snap := env.counters.Snapshot()
			if snap.FetchFail != 1 || snap.FetchSuccess != 0 {
				t.Errorf("counters = %+v", snap)
			}
		})
	}
}

func TestRunCycle_EmptyRanking(t *testing.T) {
	env := newTestEnv(t)
	env.source.items = []news.CandidateItem{}

	res := env.orchestrator().RunCycle(context.Background())
	if res.Err != nil || res.Candidates != 0 {
		t.Fatalf("RunCycle() = %+v", res)
	}
	if got := env.counters.Snapshot().FetchSuccess; got != 1 {
		t.Errorf("fetch_success = %d, want 1", got)
	}
}

func TestRunCycle_LedgerLoad(t *testing.T) {
	t.Run("corrupt ledger is treated as readable", func(t *testing.T) {
		env := newTestEnv(t)
		env.ledger = &mockLedger{
			records: map[string]news.LedgerRecord{"u0": {Title: "old"}},
			loadErr: news.CorruptState(errors.New("bad json")),
		}
		env.source.items = []news.CandidateItem{{Identity: "u0", Title: "old"}, {Identity: "u1", Title: "速報A"}}

		res := env.orchestrator().RunCycle(context.Background())
		if res.Err != nil || res.New != 1 {
			t.Fatalf("RunCycle() = %+v", res)
		}
		if added := env.ledger.(*mockLedger).added; len(added) != 1 || added[0] != "u1" {
			t.Errorf("added = %v", added)
		}
	})

	t.Run("other load error aborts the cycle", func(t *testing.T) {
		env := newTestEnv(t)
		env.ledger = &mockLedger{loadErr: errors.New("permission denied")}

		res := env.orchestrator().RunCycle(context.Background())
		if res.Err == nil {
			t.Fatal("RunCycle() expected error")
		}
		if env.enricher.calls != 0 {
			t.Error("no item may be processed when the ledger is unreadable")
		}
	})
}

func TestRunCycle_OrderAndPacing(t *testing.T) {
	env := newTestEnv(t)
	env.source.items = []news.CandidateItem{
		{Identity: "u1", Title: "一"},
		{Identity: "u2", Title: "二"},
		{Identity: "u1", Title: "一"},
		{Identity: "u3", Title: "三"},
	}
	var order []string
	env.enricher.enrichFunc = func(ctx context.Context, title, body string) (news.EnrichedContent, error) {
		order = append(order, title)
		return news.EnrichedContent{TranslatedTitle: title}, nil
	}

	res := env.orchestrator().RunCycle(context.Background())
	if res.New != 3 {
		t.Fatalf("New = %d, want 3", res.New)
	}
	if strings.Join(order, ",") != "一,二,三" {
		t.Errorf("order = %v", order)
	}
	if len(env.sleeps) != 2 {
		t.Errorf("sleeps = %v, want pacing between items only", env.sleeps)
	}
	for _, d := range env.sleeps {
		if d != 5*time.Second {
			t.Errorf("pacing = %v, want 5s", d)
		}
	}
}

func TestRunCycle_Canceled(t *testing.T) {
	env := newTestEnv(t)
	env.source.items = []news.CandidateItem{{Identity: "u1", Title: "一"}, {Identity: "u2", Title: "二"}}

	ctx, cancel := context.WithCancel(context.Background())
	env.publisher.publishFunc = func(ctx context.Context, post formatter.Post) (int64, error) {
		cancel()
		return 7, nil
	}

	res := env.orchestrator().RunCycle(ctx)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", res.Err)
	}
	if env.publisher.count() != 1 {
		t.Errorf("publish calls = %d, want 1", env.publisher.count())
	}
	records := loadLedger(t, env.ledger)
	if _, ok := records["u1"]; !ok {
		t.Error("a published item must be recorded even when the cycle is canceled")
	}
	if _, ok := records["u2"]; ok {
		t.Error("u2 must not be processed after cancel")
	}
}

func TestPipeline_NotConfigured(t *testing.T) {
	res := NewPipeline(PipelineDeps{}).Process(context.Background(), news.CandidateItem{Identity: "u1"})
	if !errors.Is(res.Err, ErrNotConfigured) {
		t.Errorf("Err = %v, want ErrNotConfigured", res.Err)
	}
	if err := NewOrchestrator(PipelineDeps{}).Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Run() = %v, want ErrNotConfigured", err)
	}
}

type panicSource struct{}

func (panicSource) FetchRanking(ctx context.Context) ([]news.CandidateItem, error) {
	panic("boom")
}

func TestOrchestrator_RunRecoversAndRereadsInterval(t *testing.T) {
	env := newTestEnv(t)
	env.cfg["warmup_seconds"] = 3
	env.cfg["schedule_interval_minutes"] = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := env.deps()
	deps.Source = panicSource{}
	var sleeps []time.Duration
	deps.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 2 {
			env.cfg["schedule_interval_minutes"] = 1
		}
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := NewOrchestrator(deps).Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []time.Duration{3 * time.Second, 2 * time.Minute, time.Minute}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
}
