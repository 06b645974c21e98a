package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

const defaultRedisKey = "newsbot:ledger"

// RedisOptions - параметры подключения к Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// hashClient - подмножество команд Redis, которое использует стор.
type hashClient interface {
	HSetNX(ctx context.Context, key, field string, value interface{}) *redis.BoolCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	Close() error
}

// RedisStore хранит леджер в одном хэше: поле - identity, значение - JSON
// записи. HSETNX даёт атомарное добавление без перезаписи для любого числа
// процессов.
type RedisStore struct {
	client hashClient
	key    string
}

var _ Store = (*RedisStore)(nil)

// OpenRedis подключается к Redis и проверяет соединение.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return newRedisStore(client, opts.Key), nil
}

func newRedisStore(client hashClient, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load реализует Store. Нечитаемые значения пропускаются, остальные записи
// возвращаются вместе с ошибкой news.ErrCorruptState.
func (s *RedisStore) Load(ctx context.Context) (map[string]news.LedgerRecord, error) {
	records := make(map[string]news.LedgerRecord)

	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return records, fmt.Errorf("hgetall %s: %w", s.key, err)
	}

	var broken int
	for identity, value := range raw {
		var rec news.LedgerRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			broken++
			continue
		}
		records[identity] = rec
	}
	if broken > 0 {
		return records, news.CorruptState(fmt.Errorf("%d unreadable entries in %s", broken, s.key))
	}
	return records, nil
}

// AppendIfAbsent реализует Store.
func (s *RedisStore) AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error) {
	if identity == "" {
		return false, errors.New("empty identity")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	added, err := s.client.HSetNX(ctx, s.key, identity, data).Result()
	if err != nil {
		return false, fmt.Errorf("hsetnx %s: %w", s.key, err)
	}
	return added, nil
}

// Close закрывает клиент Redis.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
