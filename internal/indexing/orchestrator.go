// Package indexing runs the full reindex pipeline: fetch every collection,
// format one document, chunk it, embed the chunks and upsert them into the
// vector store.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alpa-strategie/aia-backend/internal/chunker"
	"github.com/alpa-strategie/aia-backend/internal/content"
	"github.com/alpa-strategie/aia-backend/internal/embedding"
	"github.com/alpa-strategie/aia-backend/internal/metrics"
	"github.com/alpa-strategie/aia-backend/internal/storage/models"
	"github.com/alpa-strategie/aia-backend/internal/vector"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/utils"
)

const (
	DefaultEmbedBatchSize  = 50
	DefaultUpsertBatchSize = 100
	DefaultTitle           = "Baptiste Leroux - Alpa Stratégie"
)

// PartialFailurePolicy decides what a failed collection fetch does to the run.
type PartialFailurePolicy string

const (
	// FailFast aborts the run on the first failed collection.
	FailFast PartialFailurePolicy = "fail"
	// AllowPartial indexes whatever was fetched and fails only when every
	// collection failed.
	AllowPartial PartialFailurePolicy = "allow"
)

// RunStore persists sync history and the chunk manifest. It is optional.
type RunStore interface {
	InsertRun(ctx context.Context, run *models.SyncRun) error
	FinishRun(ctx context.Context, run *models.SyncRun) error
	IndexedChunkIDs(ctx context.Context) ([]string, error)
	ReplaceManifest(ctx context.Context, runID string, chunks []models.IndexedChunk) error
}

type Config struct {
	Title            string
	Collections      []content.Collection
	EmbedBatchSize   int
	EmbedConcurrency int
	UpsertBatchSize  int
	PartialFailure   PartialFailurePolicy
	PruneOrphans     bool
}

type Result struct {
	RunID             string        `json:"runId"`
	TotalChunks       int           `json:"totalChunks"`
	Collections       []string      `json:"databases"`
	FailedCollections []string      `json:"failedCollections"`
	UsedFallback      bool          `json:"usedFallback"`
	Pruned            int           `json:"pruned"`
	Duration          time.Duration `json:"-"`
}

type Orchestrator struct {
	source   content.Source
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vector.Store
	runs     RunStore
	cfg      Config

	running sync.Mutex
	now     func() time.Time
}

// NewOrchestrator wires the pipeline. A nil source means the content
// repository is not configured and every run indexes the fallback document.
// A nil runs store disables history and orphan pruning.
func NewOrchestrator(source content.Source, ch *chunker.Chunker, embedder embedding.Embedder, store vector.Store, runs RunStore, cfg Config) *Orchestrator {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = content.DefaultCollections()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.EmbedConcurrency <= 0 || cfg.EmbedConcurrency > cfg.EmbedBatchSize {
		cfg.EmbedConcurrency = cfg.EmbedBatchSize
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.PartialFailure == "" {
		cfg.PartialFailure = FailFast
	}

	return &Orchestrator{
		source:   source,
		chunker:  ch,
		embedder: embedder,
		store:    store,
		runs:     runs,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ReindexAll rebuilds the index from the content source. Only one run may be
// active at a time; a concurrent call returns ErrReindexInProgress at once.
func (o *Orchestrator) ReindexAll(ctx context.Context, observers ...Observer) (*Result, error) {
	if !o.running.TryLock() {
		return nil, ErrReindexInProgress
	}
	defer o.running.Unlock()

	start := o.now()
	result := &Result{
		RunID:       uuid.NewString(),
		Collections: o.collectionIDs(),
	}
	notify := fanOut(observers)

	run := &models.SyncRun{
		ID:        result.RunID,
		Trigger:   TriggerFrom(ctx),
		Status:    models.RunStatusRunning,
		StartedAt: start,
	}
	o.recordStart(ctx, run)

	logger.Info("Reindex started",
		zap.String("run_id", result.RunID),
		zap.String("trigger", run.Trigger),
		zap.Strings("collections", result.Collections),
	)

	err := o.reindex(ctx, result, notify)
	result.Duration = o.now().Sub(start)

	o.recordFinish(ctx, run, result, err)
	metrics.ReindexDuration.Observe(result.Duration.Seconds())

	if err != nil {
		metrics.ReindexTotal.WithLabelValues("failed").Inc()
		logger.Error("Reindex failed",
			zap.String("run_id", result.RunID),
			zap.Duration("duration", result.Duration),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.ReindexTotal.WithLabelValues("success").Inc()
	metrics.ChunksIndexed.Set(float64(result.TotalChunks))
	logger.Info("Reindex completed",
		zap.String("run_id", result.RunID),
		zap.Int("chunks", result.TotalChunks),
		zap.Strings("failed_collections", result.FailedCollections),
		zap.Bool("used_fallback", result.UsedFallback),
		zap.Int("pruned", result.Pruned),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func (o *Orchestrator) reindex(ctx context.Context, result *Result, notify Observer) error {
	document, err := o.buildDocument(ctx, result)
	if err != nil {
		return err
	}
	notify(Progress{Stage: StageFetch, Done: len(o.cfg.Collections), Total: len(o.cfg.Collections)})

	chunks := o.chunker.Split(document)
	if len(chunks) == 0 {
		return ErrNoContent
	}
	logger.Info("Document chunked", zap.Int("document_length", len(document)), zap.Int("chunks", len(chunks)))

	vectors, err := o.embedChunks(ctx, chunks, notify)
	if err != nil {
		return stageErr(StageEmbed, err)
	}

	records := make([]vector.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vector.Record{
			ID:       ch.ID,
			Vector:   vectors[i],
			Metadata: ch.VectorMetadata(),
		}
	}

	if err := o.upsert(ctx, records, notify); err != nil {
		return stageErr(StageUpsert, err)
	}
	result.TotalChunks = len(chunks)

	result.Pruned = o.syncManifest(ctx, result.RunID, chunks)
	return nil
}

// buildDocument fetches and formats the knowledge base, falling back to the
// static document when the source is unconfigured or the result too sparse.
func (o *Orchestrator) buildDocument(ctx context.Context, result *Result) (string, error) {
	if o.source == nil {
		logger.Warn("Content source not configured, indexing fallback knowledge base")
		result.UsedFallback = true
		return content.FallbackDocument, nil
	}

	collections, err := o.fetchAll(ctx)
	if err != nil {
		return "", stageErr(StageFetch, err)
	}

	for _, c := range collections {
		if c.Failed() {
			result.FailedCollections = append(result.FailedCollections, c.Collection.ID)
		}
	}

	document := content.Format(o.cfg.Title, collections)
	if content.IsSparse(document) {
		logger.Warn("Knowledge base too sparse, indexing fallback knowledge base",
			zap.Int("document_length", len(document)),
		)
		result.UsedFallback = true
		return content.FallbackDocument, nil
	}

	return document, nil
}

// fetchAll queries every collection concurrently. Results keep collection
// order regardless of completion order.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]content.CollectionResult, error) {
	results := make([]content.CollectionResult, len(o.cfg.Collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range o.cfg.Collections {
		g.Go(func() error {
			records, err := o.source.QueryCollection(gctx, col.ID)
			results[i] = content.CollectionResult{Collection: col, Records: records, Err: err}
			if err != nil {
				metrics.CollectionFetchFailures.WithLabelValues(col.ID).Inc()
				logger.Warn("Collection fetch failed", zap.String("collection", col.ID), zap.Error(err))
				if o.cfg.PartialFailure == FailFast {
					return fmt.Errorf("collection %s: %w", col.ID, err)
				}
				return nil
			}
			logger.Info("Collection fetched", zap.String("collection", col.ID), zap.Int("records", len(records)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []error
	for _, r := range results {
		if r.Failed() {
			errs = append(errs, fmt.Errorf("collection %s: %w", r.Collection.ID, r.Err))
		}
	}
	if len(errs) > 0 && len(errs) == len(results) {
		return nil, errors.Join(errs...)
	}

	return results, nil
}

// embedChunks embeds batches one after another. Requests inside a batch run
// concurrently, capped at EmbedConcurrency.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []chunker.Chunk, notify Observer) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	batches := batchCount(len(chunks), o.cfg.EmbedBatchSize)

	for b := 0; b < batches; b++ {
		lo := b * o.cfg.EmbedBatchSize
		hi := min(lo+o.cfg.EmbedBatchSize, len(chunks))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.EmbedConcurrency)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				vec, err := o.embedder.Embed(gctx, chunks[i].Text)
				if err != nil {
					return fmt.Errorf("chunk %s: %w", chunks[i].ID, err)
				}
				vectors[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		logger.Info("Embedding batch completed",
			zap.Int("batch", b+1),
			zap.Int("batches", batches),
			zap.Int("embedded", hi),
			zap.Int("total", len(chunks)),
		)
		notify(Progress{Stage: StageEmbed, Batch: b + 1, Batches: batches, Done: hi, Total: len(chunks)})
	}

	return vectors, nil
}

func (o *Orchestrator) upsert(ctx context.Context, records []vector.Record, notify Observer) error {
	batches := batchCount(len(records), o.cfg.UpsertBatchSize)

	for b := 0; b < batches; b++ {
		lo := b * o.cfg.UpsertBatchSize
		hi := min(lo+o.cfg.UpsertBatchSize, len(records))

		if err := o.store.Upsert(ctx, records[lo:hi]); err != nil {
			return fmt.Errorf("batch %d/%d: %w", b+1, batches, err)
		}
		metrics.VectorsUpserted.Add(float64(hi - lo))

		logger.Info("Upsert batch completed",
			zap.Int("batch", b+1),
			zap.Int("batches", batches),
			zap.Int("uploaded", hi),
			zap.Int("total", len(records)),
		)
		notify(Progress{Stage: StageUpsert, Batch: b + 1, Batches: batches, Done: hi, Total: len(records)})
	}

	return nil
}

// syncManifest records which ids the vector store now holds and, when
// enabled, deletes ids from earlier runs that this run no longer produced.
// Ids that stay in the store, pruned or not, remain in the manifest so a
// later run can still find them. Failures here never fail the run.
func (o *Orchestrator) syncManifest(ctx context.Context, runID string, chunks []chunker.Chunk) int {
	if o.runs == nil {
		return 0
	}

	previous, err := o.runs.IndexedChunkIDs(ctx)
	if err != nil {
		logger.Warn("Failed to read chunk manifest", zap.Error(err))
		return 0
	}

	current := make(map[string]struct{}, len(chunks))
	manifest := make([]models.IndexedChunk, 0, len(chunks))
	for _, ch := range chunks {
		current[ch.ID] = struct{}{}
		manifest = append(manifest, models.IndexedChunk{
			ID:       ch.ID,
			Index:    ch.Index,
			TextHash: utils.HashString(ch.Text),
			Source:   ch.Metadata.Source,
			Category: ch.Metadata.Category,
			Section:  ch.Metadata.Section,
		})
	}

	var orphans []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	pruned := 0
	if o.cfg.PruneOrphans && len(orphans) > 0 {
		if err := o.store.Delete(ctx, orphans); err != nil {
			logger.Warn("Failed to prune orphaned chunks", zap.Int("orphans", len(orphans)), zap.Error(err))
		} else {
			pruned = len(orphans)
			metrics.OrphansPruned.Add(float64(pruned))
			logger.Info("Orphaned chunks pruned", zap.Int("count", pruned))
			orphans = nil
		}
	} else if len(orphans) > 0 {
		logger.Info("Stale chunks left in vector store", zap.Int("count", len(orphans)))
	}

	for _, id := range orphans {
		manifest = append(manifest, models.IndexedChunk{ID: id, Index: -1})
	}

	if err := o.runs.ReplaceManifest(ctx, runID, manifest); err != nil {
		logger.Warn("Failed to write chunk manifest", zap.Error(err))
	}

	return pruned
}

func (o *Orchestrator) recordStart(ctx context.Context, run *models.SyncRun) {
	if o.runs == nil {
		return
	}
	if err := o.runs.InsertRun(ctx, run); err != nil {
		logger.Warn("Failed to record sync run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, run *models.SyncRun, result *Result, err error) {
	if o.runs == nil {
		return
	}

	finished := o.now()
	run.FinishedAt = &finished
	run.DurationMS = result.Duration.Milliseconds()
	run.Collections = result.Collections
	run.FailedCollections = result.FailedCollections
	run.UsedFallback = result.UsedFallback
	run.TotalChunks = result.TotalChunks
	run.Pruned = result.Pruned
	run.Status = models.RunStatusSuccess
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
	}

	// The caller's context may already be cancelled, which is often why the
	// run failed.
	if ferr := o.runs.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		logger.Warn("Failed to finish sync run", zap.String("run_id", run.ID), zap.Error(ferr))
	}
}

func (o *Orchestrator) collectionIDs() []string {
	ids := make([]string, len(o.cfg.Collections))
	for i, c := range o.cfg.Collections {
		ids[i] = c.ID
	}
	return ids
}

func batchCount(n, size int) int {
	return (n + size - 1) / size
}
