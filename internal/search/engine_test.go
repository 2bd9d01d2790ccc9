package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpa-strategie/aia-backend/internal/cache"
	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/internal/vector/memory"
)

type countingEmbedder struct {
	calls atomic.Int32
	err   error

	mu   sync.Mutex
	seen []string
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.seen = append(e.seen, text)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if strings.EqualFold(strings.TrimSpace(text), "price?") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

type countingStore struct {
	vector.Store
	queries atomic.Int32
	err     error
}

func (s *countingStore) Query(ctx context.Context, v []float32, topK int) ([]vector.Match, error) {
	s.queries.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Query(ctx, v, topK)
}

func seededStore(t *testing.T) *countingStore {
	t.Helper()
	mem := memory.NewStore(3)
	require.NoError(t, mem.Upsert(context.Background(), []vector.Record{
		{ID: "chunk-0", Vector: []float32{1, 0, 0}, Metadata: map[string]string{vector.MetaText: "Daily rate is 900 EUR."}},
		{ID: "chunk-1", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]string{vector.MetaText: "Missions last 3 to 12 months."}},
		{ID: "chunk-2", Vector: []float32{0, 0, 1}, Metadata: map[string]string{vector.MetaText: "Based in Lyon."}},
		{ID: "chunk-3", Vector: []float32{0.8, 0, 0.2}, Metadata: map[string]string{vector.MetaSource: "faqs"}},
	}))
	return &countingStore{Store: mem}
}

func TestSearch_AssemblesRankedContext(t *testing.T) {
	e := NewEngine(&countingEmbedder{}, seededStore(t), cache.NewMemory(cache.DefaultTTL))

	got, err := e.Search(context.Background(), "Price?", 3)
	require.NoError(t, err)
	// chunk-3 has no text and is skipped.
	assert.Equal(t, "Daily rate is 900 EUR."+Separator+"Missions last 3 to 12 months.", got)
}

func TestSearch_CacheHitSkipsEmbedding(t *testing.T) {
	emb := &countingEmbedder{}
	store := seededStore(t)
	e := NewEngine(emb, store, cache.NewMemory(cache.DefaultTTL))

	first, err := e.Search(context.Background(), "Price?", 10)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "  price?  ", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), emb.calls.Load())
	assert.Equal(t, int32(2), store.queries.Load())
}

func TestSearch_EmbedsQueryAsWritten(t *testing.T) {
	emb := &countingEmbedder{}
	c := cache.NewMemory(cache.DefaultTTL)
	e := NewEngine(emb, seededStore(t), c)

	_, err := e.Search(context.Background(), "  What does the PMO Offer?  ", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"  What does the PMO Offer?  "}, emb.seen)
	_, ok := c.Get(context.Background(), "what does the pmo offer?")
	assert.True(t, ok, "vector is cached under the normalized key")
}

func TestSearch_InvalidInput(t *testing.T) {
	emb := &countingEmbedder{}
	e := NewEngine(emb, seededStore(t), nil)

	_, err := e.Search(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = e.Search(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = e.Search(context.Background(), "price?", 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Zero(t, emb.calls.Load())
}

func TestSearch_EmptyStore(t *testing.T) {
	e := NewEngine(&countingEmbedder{}, memory.NewStore(3), nil)

	got, err := e.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSearch_BackendFailuresYieldEmptyContext(t *testing.T) {
	e := NewEngine(&countingEmbedder{err: errors.New("rate limited")}, seededStore(t), nil)
	got, err := e.Search(context.Background(), "price?", 5)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	store := seededStore(t)
	store.err = errors.New("connection refused")
	e = NewEngine(&countingEmbedder{}, store, nil)
	got, err = e.Search(context.Background(), "price?", 5)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSearch_FailedEmbeddingIsNotCached(t *testing.T) {
	emb := &countingEmbedder{err: errors.New("timeout")}
	c := cache.NewMemory(cache.DefaultTTL)
	e := NewEngine(emb, seededStore(t), c)

	_, _ = e.Search(context.Background(), "price?", 5)
	assert.Zero(t, c.Len())

	emb.err = nil
	got, err := e.Search(context.Background(), "price?", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, int32(2), emb.calls.Load())
}
