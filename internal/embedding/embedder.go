// Package embedding turns text into fixed-dimension vectors.
package embedding

import "context"

// Embedder converts one text into its embedding vector. Implementations are
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
