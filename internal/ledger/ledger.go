package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// Store - долговременный реестр обработанных статей.
//
// Load возвращает полный снимок. Отсутствие хранилища - пустой снимок без
// ошибки. Нечитаемое хранилище - пустой (или частичный) снимок вместе с
// ошибкой news.ErrCorruptState; такая ошибка не фатальна, снимком можно
// пользоваться.
//
// AppendIfAbsent записывает запись, только если identity ещё нет. Возвращает
// true, если запись добавлена.
type Store interface {
	Load(ctx context.Context) (map[string]news.LedgerRecord, error)
	AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error)
	Close() error
}

// Поддерживаемые бэкенды.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options описывает выбор и параметры бэкенда.
type Options struct {
	Backend string

	// JSON-файл и файл SQLite.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	Logger *slog.Logger
}

// Open открывает хранилище согласно Options.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendJSON:
		if opts.Path == "" {
			return nil, errors.New("ledger path is empty")
		}
		return NewFileStore(opts.Path, opts.Logger), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Key:      opts.RedisKey,
		})
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}

// Totals загружает леджер и считает агрегаты. Повреждённое хранилище
// считается пустым.
func Totals(ctx context.Context, store Store) (news.LedgerTotals, error) {
	records, err := store.Load(ctx)
	if err != nil && !errors.Is(err, news.ErrCorruptState) {
		return news.LedgerTotals{}, err
	}
	return news.SummarizeLedger(records), nil
}
