package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ivanoskov/budget_bot/internal/model"
)

// FileLedger хранит записи в памяти под RWMutex и сбрасывает снимок в
// JSON-файл на каждой записи. Файл пишется во временное имя и переименовывается,
// чтобы не было гонки чтения-изменения-записи целого файла.
type FileLedger struct {
	path string

	mu   sync.RWMutex
	data map[int64]*model.UserRecord
}

// NewFileLedger открывает хранилище, подхватывая существующий файл, если он есть.
func NewFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path: path,
		data: make(map[int64]*model.UserRecord),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	// Ключи файла — строковые ID пользователей, как в исходном data.json.
	byID := make(map[string]*model.UserRecord)
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("failed to parse ledger file %s: %w", path, err)
	}
	for key, rec := range byID {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad user id %q in ledger file: %w", key, err)
		}
		rec.UserID = id
		l.data[id] = rec
	}
	return l, nil
}

func (l *FileLedger) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.data[userID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (l *FileLedger) Set(ctx context.Context, userID int64, rec *model.UserRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.data[userID] = rec.Clone()
	return l.snapshot()
}

func (l *FileLedger) All(ctx context.Context) (map[int64]*model.UserRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[int64]*model.UserRecord, len(l.data))
	for id, rec := range l.data {
		out[id] = rec.Clone()
	}
	return out, nil
}

// snapshot пишет весь словарь во временный файл и атомарно подменяет основной.
// Вызывается под l.mu.
func (l *FileLedger) snapshot() error {
	byID := make(map[string]*model.UserRecord, len(l.data))
	for id, rec := range l.data {
		byID[strconv.FormatInt(id, 10)] = rec
	}

	raw, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write ledger snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close ledger snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}
