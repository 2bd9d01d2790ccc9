// Package vector defines the nearest-neighbour index the pipeline writes chunk
// embeddings to and searches at query time.
package vector

import (
	"context"
	"errors"
	"fmt"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata keys persisted with every record.
const (
	MetaText     = "text"
	MetaSource   = "source"
	MetaCategory = "category"
	MetaSection  = "section"
)

// Record is one indexed chunk. Metadata always carries MetaText.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is a query hit, most similar first.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Store upserts are overwrites keyed by Record.ID.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// CheckDimension verifies every record vector has length dim. A dim of zero
// disables the check.
func CheckDimension(records []Record, dim int) error {
	if dim <= 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
	}
	return nil
}
