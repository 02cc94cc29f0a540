package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// MemoryStore keeps cache entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.CacheEntry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*models.CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *MemoryStore) Set(_ context.Context, entry *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = *entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.StoredAt.Before(before) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }
