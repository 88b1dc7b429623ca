// Package cache provides a small TTL cache for retrieval results, with an
// in-process backend and an optional Redis backend for multi-instance
// deployments.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores opaque payloads under string keys with per-entry TTLs.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the payload for key if present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores the payload under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a mutex-guarded in-process cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}

	// Opportunistic sweep keeps the map from accumulating dead entries.
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
