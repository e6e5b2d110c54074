package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

type inMemory struct {
	mu         sync.RWMutex
	storage    map[string]memoryEntry
	order      []string
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryCache returns a process local cache.
// When maxEntries is reached, the oldest entry is evicted.
func NewMemoryCache(maxEntries int, ttl time.Duration) Cache {
	return &inMemory{
		storage:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (m *inMemory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.storage[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *inMemory) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}

	if _, ok := m.storage[key]; !ok {
		m.order = append(m.order, key)
	}
	m.storage[key] = e

	for m.maxEntries > 0 && len(m.order) > m.maxEntries {
		delete(m.storage, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}
