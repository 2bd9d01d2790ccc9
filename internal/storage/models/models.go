package models

import "time"

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// SyncRun is one reindex attempt.
type SyncRun struct {
	ID                string
	Trigger           string
	Status            string
	TotalChunks       int
	Collections       []string
	FailedCollections []string
	UsedFallback      bool
	Pruned            int
	Error             string
	StartedAt         time.Time
	FinishedAt        *time.Time
	DurationMS        int64
}

// IndexedChunk is one manifest row: a chunk id present in the vector store
// after the last successful run.
type IndexedChunk struct {
	ID       string
	RunID    string
	Index    int
	TextHash string
	Source   string
	Category string
	Section  string
}
