package cache

import (
	"context"
	"sync"
	"time"
)

// entry is one cached value and its absolute expiry (zero = never).
type entry struct {
	val     []byte
	expires time.Time
}

// MemoryStore is an in-process Store. Expired entries are dropped lazily on
// read and swept every gcEvery writes.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]entry
	now     func() time.Time
	writes  uint64
	gcEvery uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]entry),
		now:     time.Now,
		gcEvery: 1000,
	}
}

// Get returns a copy of the stored value or ErrMiss.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.val...), nil
}

// Set stores a copy of val under key.
func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.writes >= m.gcEvery {
		for k, e := range m.items {
			if !e.expires.IsZero() && !now.Before(e.expires) {
				delete(m.items, k)
			}
		}
		m.writes = 0
	}

	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.items[key] = e
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
