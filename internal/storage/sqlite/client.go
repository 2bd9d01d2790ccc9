package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/storage/models"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

// Client keeps sync history and the chunk manifest used for orphan pruning.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Foreign keys are a per-connection setting.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		total_chunks INTEGER NOT NULL DEFAULT 0,
		collections TEXT,
		failed_collections TEXT,
		used_fallback INTEGER NOT NULL DEFAULT 0,
		pruned INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

	CREATE TABLE IF NOT EXISTS indexed_chunks (
		chunk_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text_hash TEXT NOT NULL,
		source TEXT,
		category TEXT,
		section TEXT,
		FOREIGN KEY (run_id) REFERENCES sync_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_indexed_chunks_run ON indexed_chunks(run_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

func (c *Client) InsertRun(ctx context.Context, run *models.SyncRun) error {
	query := `INSERT INTO sync_runs (id, trigger_source, status, started_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, run.ID, run.Trigger, run.Status, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	logger.Debug("Sync run recorded", zap.String("run_id", run.ID), zap.String("trigger", run.Trigger))
	return nil
}

func (c *Client) FinishRun(ctx context.Context, run *models.SyncRun) error {
	collections, err := json.Marshal(run.Collections)
	if err != nil {
		return fmt.Errorf("failed to marshal collections: %w", err)
	}
	failed, err := json.Marshal(run.FailedCollections)
	if err != nil {
		return fmt.Errorf("failed to marshal failed collections: %w", err)
	}

	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	usedFallback := 0
	if run.UsedFallback {
		usedFallback = 1
	}

	query := `
		UPDATE sync_runs SET
			status = ?, total_chunks = ?, collections = ?, failed_collections = ?,
			used_fallback = ?, pruned = ?, error = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`

	res, err := c.db.ExecContext(ctx, query,
		run.Status,
		run.TotalChunks,
		string(collections),
		string(failed),
		usedFallback,
		run.Pruned,
		run.Error,
		finishedAt.UnixMilli(),
		run.DurationMS,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to finish sync run: %s not found", run.ID)
	}

	logger.Info("Sync run finished",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("total_chunks", run.TotalChunks),
	)
	return nil
}

func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	query := `
		SELECT id, trigger_source, status, total_chunks, collections, failed_collections,
			used_fallback, pruned, error, started_at, finished_at, duration_ms
		FROM sync_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var (
			r                   models.SyncRun
			collections, failed sql.NullString
			errText             sql.NullString
			usedFallback        int
			startedAt           int64
			finishedAt          sql.NullInt64
			durationMS          sql.NullInt64
		)

		err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &r.TotalChunks, &collections, &failed,
			&usedFallback, &r.Pruned, &errText, &startedAt, &finishedAt, &durationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if collections.Valid {
			_ = json.Unmarshal([]byte(collections.String), &r.Collections)
		}
		if failed.Valid {
			_ = json.Unmarshal([]byte(failed.String), &r.FailedCollections)
		}
		r.UsedFallback = usedFallback == 1
		r.Error = errText.String
		r.StartedAt = time.UnixMilli(startedAt)
		if finishedAt.Valid {
			t := time.UnixMilli(finishedAt.Int64)
			r.FinishedAt = &t
		}
		r.DurationMS = durationMS.Int64

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}

	return runs, nil
}

// IndexedChunkIDs returns the manifest written by the last successful run.
func (c *Client) IndexedChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT chunk_id FROM indexed_chunks ORDER BY chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk manifest: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ReplaceManifest swaps the whole manifest for chunks in one transaction.
func (c *Client) ReplaceManifest(ctx context.Context, runID string, chunks []models.IndexedChunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_chunks`); err != nil {
		return fmt.Errorf("failed to clear chunk manifest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indexed_chunks (chunk_id, run_id, chunk_index, text_hash, source, category, section)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare manifest insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		_, err := stmt.ExecContext(ctx, ch.ID, runID, ch.Index, ch.TextHash, ch.Source, ch.Category, ch.Section)
		if err != nil {
			return fmt.Errorf("failed to insert manifest row %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk manifest: %w", err)
	}

	logger.Debug("Chunk manifest replaced", zap.String("run_id", runID), zap.Int("chunks", len(chunks)))
	return nil
}
