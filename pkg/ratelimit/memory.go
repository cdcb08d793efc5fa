package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps counters in-process. Used when no cache_url is
// configured; semantics match the Redis backend for a single instance.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   int64
	expires time.Time
}

// NewMemoryBackend creates an empty in-process counter store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// IncrBy adds delta to key, setting ttl on first write.
func (m *MemoryBackend) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	e, ok := m.entries[key]
	if !ok || (!e.expires.IsZero() && now.After(e.expires)) {
		e = &memoryEntry{}
		if ttl > 0 {
			e.expires = now.Add(ttl)
		}
		m.entries[key] = e
	}
	e.value += delta
	return e.value, nil
}

// Delete removes keys.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// sweepLocked drops expired entries opportunistically. Small maps make a
// full scan cheap enough.
func (m *MemoryBackend) sweepLocked(now time.Time) {
	if len(m.entries) < 4096 {
		return
	}
	for k, e := range m.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(m.entries, k)
		}
	}
}
