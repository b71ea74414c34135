package stash

import (
	"context"
	"sync"
)

// MemoryDisk keeps documents in memory. It is meant for tests and dry runs.
type MemoryDisk struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryDisk creates an empty in-memory disk.
func NewMemoryDisk() *MemoryDisk {
	return &MemoryDisk{docs: make(map[string][]byte)}
}

func (m *MemoryDisk) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryDisk) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryDisk) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}
