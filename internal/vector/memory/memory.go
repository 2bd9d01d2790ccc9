// Package memory is an in-process vector store using brute-force cosine
// similarity. It backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/alpa-strategie/aia-backend/internal/vector"
)

type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]vector.Record
}

// NewStore creates an empty store. A dimension of zero is fixed by the first
// upsert.
func NewStore(dimension int) *Store {
	return &Store{
		dimension: dimension,
		records:   make(map[string]vector.Record),
	}
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 && len(records) > 0 {
		dim = len(records[0].Vector)
	}
	if err := vector.CheckDimension(records, dim); err != nil {
		return err
	}
	s.dimension = dim

	for _, r := range records {
		s.records[r.ID] = vector.Record{
			ID:       r.ID,
			Vector:   append([]float32(nil), r.Vector...),
			Metadata: maps.Clone(r.Metadata),
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(query), s.dimension)
	}

	matches := make([]vector.Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, vector.Match{
			ID:       r.ID,
			Score:    cosine(query, r.Vector),
			Metadata: maps.Clone(r.Metadata),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a copy of the record stored under id.
func (s *Store) Get(id string) (vector.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return vector.Record{}, false
	}
	r.Vector = append([]float32(nil), r.Vector...)
	r.Metadata = maps.Clone(r.Metadata)
	return r, true
}

func (s *Store) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
