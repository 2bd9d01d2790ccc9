// Package cache memoizes query embeddings for a short time so repeated
// questions skip the embedding provider.
package cache

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 15 * time.Minute

// Cache maps a normalized query to its embedding. Entries older than the TTL
// read as absent. Writes are last-write-wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// Invalidator is implemented by caches that can drop every entry on demand,
// e.g. after the embedding model changes.
type Invalidator interface {
	InvalidateEmbeddings(ctx context.Context) error
}

type entry struct {
	vec        []float32
	insertedAt time.Time
}

// Memory is an unbounded in-process cache with lazy expiry: stale entries are
// dropped when read.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if m.now().Sub(e.insertedAt) >= m.ttl {
		m.mu.Lock()
		// Re-check: a concurrent Set may have refreshed it.
		if cur, ok := m.entries[key]; ok && cur.insertedAt.Equal(e.insertedAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.vec, true
}

func (m *Memory) Set(_ context.Context, key string, vec []float32) {
	m.mu.Lock()
	m.entries[key] = entry{vec: vec, insertedAt: m.now()}
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) InvalidateEmbeddings(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return nil
}
