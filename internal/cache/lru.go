package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU bounds the cache size, evicting the least recently used entry once
// maxEntries is reached. Expiry uses the same TTL as Memory.
type LRU struct {
	lru *expirable.LRU[string, []float32]
}

func NewLRU(maxEntries int, ttl time.Duration) *LRU {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU{lru: expirable.NewLRU[string, []float32](maxEntries, nil, ttl)}
}

func (l *LRU) Get(_ context.Context, key string) ([]float32, bool) {
	return l.lru.Get(key)
}

func (l *LRU) Set(_ context.Context, key string, vec []float32) {
	l.lru.Add(key, vec)
}

func (l *LRU) Len() int {
	return l.lru.Len()
}

func (l *LRU) InvalidateEmbeddings(_ context.Context) error {
	l.lru.Purge()
	return nil
}
