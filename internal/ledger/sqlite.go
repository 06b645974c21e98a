package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const ledgerTable = "ledger"

// SQLiteStore хранит леджер в SQLite. Единственность identity обеспечивает
// первичный ключ, запись идёт через INSERT OR IGNORE.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite открывает базу и применяет миграции.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(60000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Load реализует Store.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]news.LedgerRecord, error) {
	records := make(map[string]news.LedgerRecord)

	query, args, err := sq.Select("identity", "title", "tg_channel_msg_id", "skipped").
		From(ledgerTable).
		ToSql()
	if err != nil {
		return records, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return records, fmt.Errorf("select ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			identity string
			rec      news.LedgerRecord
			msgID    sql.NullInt64
		)
		if err := rows.Scan(&identity, &rec.Title, &msgID, &rec.Skipped); err != nil {
			return make(map[string]news.LedgerRecord), news.CorruptState(fmt.Errorf("scan ledger row: %w", err))
		}
		if msgID.Valid {
			rec.PublishMessageID = news.MessageID(msgID.Int64)
		}
		records[identity] = rec
	}
	if err := rows.Err(); err != nil {
		return make(map[string]news.LedgerRecord), fmt.Errorf("iterate ledger: %w", err)
	}
	return records, nil
}

// AppendIfAbsent реализует Store.
func (s *SQLiteStore) AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error) {
	if identity == "" {
		return false, errors.New("empty identity")
	}

	var msgID sql.NullInt64
	if rec.PublishMessageID != nil {
		msgID = sql.NullInt64{Int64: *rec.PublishMessageID, Valid: true}
	}

	query, args, err := sq.Insert(ledgerTable).
		Options("OR IGNORE").
		Columns("identity", "title", "tg_channel_msg_id", "skipped").
		Values(identity, rec.Title, msgID, rec.Skipped).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert ledger record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
