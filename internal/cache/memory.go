package cache

import (
	"sync"
	"time"
)

// Memory is a small in-process TTL cache. The scan paths use it for
// itemID -> categoryID mappings and category name lookups, both of which are
// refetched cheaply, so eviction is expiry-only.
type Memory struct {
	defaultTTL time.Duration
	mu         sync.RWMutex
	items      map[string]entry
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// NewMemory creates a cache whose entries default to defaultTTL. A zero
// defaultTTL means entries never expire unless Set is given an explicit TTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{
		defaultTTL: defaultTTL,
		items:      make(map[string]entry),
	}
}

// Get returns the value for key if present and unexpired.
func (m *Memory) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry since we dropped the read lock.
		if cur, still := m.items[key]; still && !cur.expiresAt.IsZero() && time.Now().After(cur.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// GetString is Get for the common string-valued entries.
func (m *Memory) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key. ttl == 0 uses the cache default.
func (m *Memory) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = entry{value: value, expiresAt: expires}
	m.mu.Unlock()
}

// Len returns the number of entries, counting expired ones not yet collected.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
