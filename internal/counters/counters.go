package counters

import (
	"log/slog"
	"sync"
)

// Имена счётчиков.
const (
	FetchSuccess   = "fetch_success"
	FetchFail      = "fetch_fail"
	EnrichSuccess  = "enrich_success"
	EnrichFail     = "enrich_fail"
	PublishSuccess = "publish_success"
	PublishFail    = "publish_fail"
	SkipKeyword    = "skip_keyword"
)

// Names - все известные счётчики в порядке вывода.
var Names = []string{
	FetchSuccess, FetchFail,
	EnrichSuccess, EnrichFail,
	PublishSuccess, PublishFail,
	SkipKeyword,
}

// Snapshot - неизменяемая копия счётчиков.
type Snapshot struct {
	FetchSuccess   int64 `json:"fetch_success"`
	FetchFail      int64 `json:"fetch_fail"`
	EnrichSuccess  int64 `json:"enrich_success"`
	EnrichFail     int64 `json:"enrich_fail"`
	PublishSuccess int64 `json:"publish_success"`
	PublishFail    int64 `json:"publish_fail"`
	SkipKeyword    int64 `json:"skip_keyword"`
}

// Counters - потокобезопасные счётчики этапов с момента запуска или сброса.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
	logger *slog.Logger
}

// New создаёт обнулённые счётчики.
func New(logger *slog.Logger) *Counters {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Counters{logger: logger}
	c.values = zeroed()
	return c
}

func zeroed() map[string]int64 {
	values := make(map[string]int64, len(Names))
	for _, name := range Names {
		values[name] = 0
	}
	return values
}

// Increment увеличивает счётчик name. Неизвестное имя только логируется.
func (c *Counters) Increment(name string) {
	c.mu.Lock()
	_, ok := c.values[name]
	if ok {
		c.values[name]++
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("unknown counter", "name", name)
	}
}

// Snapshot возвращает копию текущих значений.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FetchSuccess:   c.values[FetchSuccess],
		FetchFail:      c.values[FetchFail],
		EnrichSuccess:  c.values[EnrichSuccess],
		EnrichFail:     c.values[EnrichFail],
		PublishSuccess: c.values[PublishSuccess],
		PublishFail:    c.values[PublishFail],
		SkipKeyword:    c.values[SkipKeyword],
	}
}

// Reset обнуляет все счётчики разом.
func (c *Counters) Reset() {
	c.mu.Lock()
	c.values = zeroed()
	c.mu.Unlock()
	c.logger.Info("runtime counters reset")
}
