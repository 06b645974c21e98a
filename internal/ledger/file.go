package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lazysaltyfish/tg-yahoo-news-bot/internal/news"
)

// FileStore хранит леджер в JSON-файле: объект identity -> запись.
// Чтение идёт под разделяемой блокировкой, read-modify-write под
// эксклюзивной. Блокируется соседний файл <path>.lock, чтобы rename
// временного файла не уводил блокировку.
type FileStore struct {
	path   string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore создаёт файловый леджер.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path возвращает путь к файлу леджера.
func (s *FileStore) Path() string {
	return s.path
}

// Load читает леджер под разделяемой блокировкой.
func (s *FileStore) Load(ctx context.Context) (map[string]news.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return map[string]news.LedgerRecord{}, err
	}

	// Файла (или каталога) ещё нет: ничего не обработано, блокировка не нужна.
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return map[string]news.LedgerRecord{}, nil
	}

	lock, err := acquire(s.lockPath(), false)
	if err != nil {
		return map[string]news.LedgerRecord{}, fmt.Errorf("lock ledger: %w", err)
	}
	defer lock.release()

	records, _, err := s.read()
	return records, err
}

// AppendIfAbsent добавляет запись, если identity ещё нет. Существующая
// запись никогда не перезаписывается.
func (s *FileStore) AppendIfAbsent(ctx context.Context, identity string, rec news.LedgerRecord) (bool, error) {
	if identity == "" {
		return false, errors.New("empty identity")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return false, fmt.Errorf("create ledger directory: %w", err)
	}

	lock, err := acquire(s.lockPath(), true)
	if err != nil {
		return false, fmt.Errorf("lock ledger: %w", err)
	}
	defer lock.release()

	records, raw, err := s.read()
	if err != nil {
		if !errors.Is(err, news.ErrCorruptState) {
			return false, err
		}
		// Копия повреждённого файла остаётся для разбора. Пишется только
		// здесь, под эксклюзивной блокировкой, перед перезаписью.
		brokenPath := s.path + ".broken"
		if werr := os.WriteFile(brokenPath, raw, 0o644); werr != nil {
			s.logger.Error("failed to keep corrupt ledger copy", "path", brokenPath, "error", werr)
		}
		s.logger.Warn("ledger is corrupt, rewriting from scratch", "path", s.path, "broken_copy", brokenPath, "error", err)
	}

	if _, exists := records[identity]; exists {
		return false, nil
	}
	records[identity] = rec

	if err := s.write(records); err != nil {
		return false, err
	}
	return true, nil
}

// Close реализует Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

// read вызывается только под блокировкой. Для повреждённого файла
// возвращает его содержимое вместе с ErrCorruptState.
func (s *FileStore) read() (map[string]news.LedgerRecord, []byte, error) {
	records := make(map[string]news.LedgerRecord)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil, nil
		}
		return records, nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		return make(map[string]news.LedgerRecord), data, news.CorruptState(fmt.Errorf("decode %s: %w", s.path, err))
	}
	return records, nil, nil
}

// write целиком переписывает файл через временный файл и rename.
func (s *FileStore) write(records map[string]news.LedgerRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Chmod(0o644)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp ledger file: %w", err)
	}
	return nil
}
