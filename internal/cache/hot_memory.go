package cache

import (
	"context"
	"sync"
	"time"

	"testrunner/internal/model"
)

// MemoryHot is the default in-process hot tier: a mutex-guarded map with
// per-entry TTL, used when no Redis address is configured.
type MemoryHot struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     model.CacheEntry
	expiresAt time.Time
}

// NewMemoryHot constructs an empty in-process hot tier.
func NewMemoryHot() *MemoryHot {
	return &MemoryHot{entries: make(map[string]memEntry)}
}

func (m *MemoryHot) Get(_ context.Context, key string) (model.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return model.CacheEntry{}, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return model.CacheEntry{}, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryHot) Set(_ context.Context, key string, entry model.CacheEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = memEntry{value: entry, expiresAt: expiresAt}
	return nil
}

func (m *MemoryHot) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
