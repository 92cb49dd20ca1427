package session

import (
	"context"
	"sync"

	domain "glamour/internal/domain/session"
)

// MemoryStore keeps snapshots in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]domain.Snapshot
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]domain.Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, clientID string) (domain.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[clientID]
	return snap, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, clientID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[clientID] = snap
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, clientID)
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
