// Package app builds the indexing and search pipeline from configuration. The
// HTTP server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/cache"
	rediscache "github.com/alpa-strategie/aia-backend/internal/cache/redis"
	"github.com/alpa-strategie/aia-backend/internal/chunker"
	"github.com/alpa-strategie/aia-backend/internal/content"
	"github.com/alpa-strategie/aia-backend/internal/embedding"
	"github.com/alpa-strategie/aia-backend/internal/indexing"
	"github.com/alpa-strategie/aia-backend/internal/search"
	"github.com/alpa-strategie/aia-backend/internal/storage/sqlite"
	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/internal/vector/memory"
	"github.com/alpa-strategie/aia-backend/internal/vector/qdrant"
	"github.com/alpa-strategie/aia-backend/internal/vector/zilliz"
	"github.com/alpa-strategie/aia-backend/pkg/config"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

type App struct {
	Config       *config.Config
	Orchestrator *indexing.Orchestrator
	Search       *search.Engine
	Runs         *sqlite.Client
	Store        vector.Store
	Cache        cache.Cache

	closers []func() error
}

// Dependencies overrides components that New would otherwise build from
// configuration. Nil fields are built as usual.
type Dependencies struct {
	Embedder embedding.Embedder
	Store    vector.Store
	Source   content.Source
	Cache    cache.Cache
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewWith(ctx, cfg, Dependencies{})
}

func NewWith(ctx context.Context, cfg *config.Config, deps Dependencies) (*App, error) {
	a := &App{Config: cfg}

	runs, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	a.onClose(runs.Close)
	if err := runs.InitSchema(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	a.Runs = runs

	store := deps.Store
	if store == nil {
		store, err = newVectorStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.onClose(store.Close)
	}
	a.Store = store

	embedder := deps.Embedder
	if embedder == nil {
		embedder = embedding.NewOpenAIClient(embedding.Config{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Timeout:           seconds(cfg.Embedding.TimeoutSec),
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	}

	queryCache := deps.Cache
	if queryCache == nil {
		queryCache, err = a.newCache(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	source := deps.Source
	if source == nil && cfg.NotionConfigured() {
		source = content.NewNotionSource(content.NotionConfig{
			Token:             cfg.Notion.Token,
			BaseURL:           cfg.Notion.BaseURL,
			Version:           cfg.Notion.Version,
			Timeout:           seconds(cfg.Notion.TimeoutSec),
			RequestsPerSecond: cfg.Notion.RequestsPerSecond,
			Databases: map[string]string{
				content.CollectionKnowledge: cfg.Notion.Databases.Knowledge,
				content.CollectionExpertise: cfg.Notion.Databases.Expertise,
				content.CollectionMissions:  cfg.Notion.Databases.Missions,
				content.CollectionFAQs:      cfg.Notion.Databases.FAQs,
			},
		})
	}
	if source == nil {
		logger.Warn("Notion is not configured, reindexing will use the fallback knowledge base")
	}

	ch, err := chunker.New(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap,
		chunker.WithIDScheme(chunker.IDScheme(cfg.Indexing.ChunkIDs)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	a.Orchestrator = indexing.NewOrchestrator(source, ch, embedder, store, runs, indexing.Config{
		Title:            cfg.Knowledge.Title,
		EmbedBatchSize:   cfg.Indexing.EmbedBatchSize,
		EmbedConcurrency: cfg.Indexing.EmbedConcurrency,
		UpsertBatchSize:  cfg.Indexing.UpsertBatchSize,
		PartialFailure:   indexing.PartialFailurePolicy(cfg.Indexing.PartialFailure),
		PruneOrphans:     cfg.Indexing.PruneOrphans,
	})
	a.Cache = queryCache
	a.Search = search.NewEngine(embedder, store, queryCache)

	logger.Info("Pipeline initialized",
		zap.String("vector_provider", cfg.Vector.Provider),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("notion_configured", source != nil),
		zap.Int("chunk_size", cfg.Indexing.ChunkSize),
		zap.Int("chunk_overlap", cfg.Indexing.ChunkOverlap),
	)

	return a, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config) (vector.Store, error) {
	switch cfg.Vector.Provider {
	case "milvus":
		z, err := zilliz.NewClient(ctx, zilliz.Config{
			Endpoint:       cfg.Vector.Milvus.Endpoint,
			APIKey:         cfg.Vector.Milvus.APIKey,
			CollectionName: cfg.Vector.Milvus.CollectionName,
			Dimension:      cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		if err := z.EnsureCollection(ctx); err != nil {
			z.Close()
			return nil, fmt.Errorf("failed to ensure milvus collection: %w", err)
		}
		return z, nil
	case "qdrant":
		q, err := qdrant.New(qdrant.Config{
			URL:            cfg.Vector.Qdrant.URL,
			APIKey:         cfg.Vector.Qdrant.APIKey,
			CollectionName: cfg.Vector.Qdrant.CollectionName,
			Dimension:      cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		if err := q.EnsureCollection(ctx); err != nil {
			q.Close()
			return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
		}
		return q, nil
	case "memory":
		logger.Warn("Using in-process vector store, the index will not survive a restart")
		return memory.NewStore(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Vector.Provider)
	}
}

func (a *App) newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemory(cfg.Cache.TTL()), nil
	case "lru":
		return cache.NewLRU(cfg.Cache.MaxEntries, cfg.Cache.TTL()), nil
	case "redis":
		rc, err := rediscache.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.TTL())
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		a.onClose(rc.Close)
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// InvalidateCache drops every cached query embedding.
func (a *App) InvalidateCache(ctx context.Context) error {
	inv, ok := a.Cache.(cache.Invalidator)
	if !ok {
		return fmt.Errorf("cache backend %q does not support invalidation", a.Config.Cache.Backend)
	}
	if err := inv.InvalidateEmbeddings(ctx); err != nil {
		return fmt.Errorf("failed to invalidate embedding cache: %w", err)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
