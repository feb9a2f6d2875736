package session

import (
	"context"
	"sync"

	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
)

// MemoryTable is an in-process Table. It backs tests and single-process
// multi-instance setups where persistence across restarts is not needed.
type MemoryTable struct {
	mu      sync.RWMutex
	entries map[identity.TabID]domain.SessionRecord
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[identity.TabID]domain.SessionRecord)}
}

func (t *MemoryTable) Get(_ context.Context, tab identity.TabID) (*domain.SessionRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.entries[tab]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *MemoryTable) Put(_ context.Context, tab identity.TabID, rec domain.SessionRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tab] = rec
	return nil
}

func (t *MemoryTable) Delete(_ context.Context, tab identity.TabID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, tab)
	return nil
}

func (t *MemoryTable) All(_ context.Context) (map[identity.TabID]domain.SessionRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[identity.TabID]domain.SessionRecord, len(t.entries))
	for tab, rec := range t.entries {
		out[tab] = rec
	}
	return out, nil
}

func (t *MemoryTable) Close() error { return nil }

var _ Table = (*MemoryTable)(nil)
