package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
	"github.com/psichat/client-go/pkg/log"
)

// FileTable is a Table persisted as one JSON object in a single well-known
// file, shared by every client instance of the same user account. Writes go
// through a temp-file rename so readers never observe a partial table.
//
// A missing or malformed file is treated as an empty table; corruption is
// logged and recovered from, never propagated.
type FileTable struct {
	path string
	mu   sync.Mutex
}

func NewFileTable(path string) (*FileTable, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileTable{path: path}, nil
}

// Path returns the file backing the table.
func (t *FileTable) Path() string { return t.path }

func (t *FileTable) Get(ctx context.Context, tab identity.TabID) (*domain.SessionRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.load()
	rec, ok := entries[tab]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *FileTable) Put(ctx context.Context, tab identity.TabID, rec domain.SessionRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.load()
	entries[tab] = rec
	return t.save(entries)
}

func (t *FileTable) Delete(ctx context.Context, tab identity.TabID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.load()
	if _, ok := entries[tab]; !ok {
		return nil
	}
	delete(entries, tab)
	return t.save(entries)
}

func (t *FileTable) All(ctx context.Context) (map[identity.TabID]domain.SessionRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(), nil
}

func (t *FileTable) Close() error { return nil }

func (t *FileTable) load() map[identity.TabID]domain.SessionRecord {
	entries := make(map[identity.TabID]domain.SessionRecord)

	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger := log.L()
			logger.Warn().Err(err).Str("path", t.path).Msg("failed to read session table")
		}
		return entries
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		logger := log.L()
		logger.Warn().Err(err).Str("path", t.path).Msg("session table malformed, treating as empty")
		return make(map[identity.TabID]domain.SessionRecord)
	}
	return entries
}

// save writes the table atomically: temp file in the same directory, fsync,
// then rename over the target.
func (t *FileTable) save(entries map[identity.TabID]domain.SessionRecord) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session table: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(t.path), ".sessions-")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write session table: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync session table: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close session table: %w", err)
	}

	if err := os.Rename(tmp, t.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session table: %w", err)
	}
	return nil
}

var _ Table = (*FileTable)(nil)
