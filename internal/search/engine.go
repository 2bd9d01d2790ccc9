// Package search answers a question with the most relevant indexed passages,
// assembled into one context string for prompt construction.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/cache"
	"github.com/alpa-strategie/aia-backend/internal/embedding"
	"github.com/alpa-strategie/aia-backend/internal/metrics"
	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/utils"
)

const (
	DefaultTopK = 10
	// Separator sits between passages in the assembled context.
	Separator = "\n\n---\n\n"
)

var ErrInvalidQuery = errors.New("invalid search query")

type Engine struct {
	embedder embedding.Embedder
	store    vector.Store
	cache    cache.Cache
}

func NewEngine(embedder embedding.Embedder, store vector.Store, c cache.Cache) *Engine {
	if c == nil {
		c = cache.NewMemory(cache.DefaultTTL)
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		cache:    c,
	}
}

// Search returns the text of the topK nearest chunks, best first, joined by
// Separator. An empty query or topK < 1 yields ErrInvalidQuery. Embedding and
// vector store failures are logged and yield "" so callers can still answer
// without context.
func (e *Engine) Search(ctx context.Context, query string, topK int) (string, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	key := utils.NormalizeQuery(query)
	if key == "" || topK < 1 {
		metrics.SearchTotal.WithLabelValues("invalid").Inc()
		return "", ErrInvalidQuery
	}

	vec, err := e.queryVector(ctx, key, query)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		logger.Error("Query embedding failed", zap.Error(err))
		return "", nil
	}

	matches, err := e.store.Query(ctx, vec, topK)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		logger.Error("Vector search failed", zap.Int("top_k", topK), zap.Error(err))
		return "", nil
	}

	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := m.Metadata[vector.MetaText]; text != "" {
			passages = append(passages, text)
		}
	}

	metrics.SearchResultsCount.Observe(float64(len(passages)))
	if len(passages) == 0 {
		metrics.SearchTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.SearchTotal.WithLabelValues("success").Inc()
	}

	logger.Info("Search completed",
		zap.Int("top_k", topK),
		zap.Int("matches", len(matches)),
		zap.Int("passages", len(passages)),
		zap.Duration("duration", time.Since(start)),
	)

	return strings.Join(passages, Separator), nil
}

// queryVector embeds the query as the caller wrote it. The normalized key only
// addresses the cache, so differently cased or padded variants share one entry.
func (e *Engine) queryVector(ctx context.Context, key, query string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, key); ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		logger.Debug("Embedding cache hit")
		return vec, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, vec)
	return vec, nil
}
