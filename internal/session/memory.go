package session

import (
	"context"
	"sync"
)

// MemoryPersister keeps the blob in process memory.
type MemoryPersister struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := snap
	m.snap = &cp
	return nil
}

func (m *MemoryPersister) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

func (m *MemoryPersister) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
