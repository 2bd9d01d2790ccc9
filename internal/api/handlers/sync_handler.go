package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/indexing"
	"github.com/alpa-strategie/aia-backend/internal/storage/models"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type Reindexer interface {
	ReindexAll(ctx context.Context, observers ...indexing.Observer) (*indexing.Result, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

type SyncHandler struct {
	reindexer Reindexer
	runs      RunLister
	timeout   time.Duration
}

// NewSyncHandler serves admin sync requests. A zero timeout lets a run take as
// long as it needs; a nil runs disables the history endpoint.
func NewSyncHandler(reindexer Reindexer, runs RunLister, timeout time.Duration) *SyncHandler {
	return &SyncHandler{
		reindexer: reindexer,
		runs:      runs,
		timeout:   timeout,
	}
}

func (h *SyncHandler) runContext(parent context.Context, trigger string) (context.Context, context.CancelFunc) {
	ctx := indexing.WithTrigger(parent, trigger)
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

func (h *SyncHandler) HandleSync(c *fiber.Ctx) error {
	ctx, cancel := h.runContext(c.UserContext(), "http")
	defer cancel()

	result, err := h.reindexer.ReindexAll(ctx)
	if err != nil {
		status, body := syncError(err)
		logger.Error("Admin sync failed", zap.Int("status", status), zap.Error(err))
		return c.Status(status).JSON(body)
	}

	return c.JSON(syncResponse(result))
}

func (h *SyncHandler) ListRuns(c *fiber.Ctx) error {
	if h.runs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Sync history is not available",
		})
	}

	limit := c.QueryInt("limit", defaultRunsLimit)
	if limit < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be a positive integer",
		})
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := h.runs.ListRuns(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to list sync runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sync runs",
		})
	}

	views := make([]runView, 0, len(runs))
	for _, r := range runs {
		views = append(views, newRunView(r))
	}
	return c.JSON(fiber.Map{"runs": views})
}

func syncResponse(result *indexing.Result) fiber.Map {
	failed := result.FailedCollections
	if failed == nil {
		failed = []string{}
	}
	return fiber.Map{
		"success":           true,
		"totalChunks":       result.TotalChunks,
		"chunksIndexed":     result.TotalChunks,
		"databases":         result.Collections,
		"duration":          result.Duration.Milliseconds(),
		"runId":             result.RunID,
		"failedCollections": failed,
		"pruned":            result.Pruned,
		"usedFallback":      result.UsedFallback,
	}
}

func syncError(err error) (int, fiber.Map) {
	if errors.Is(err, indexing.ErrReindexInProgress) {
		return fiber.StatusConflict, fiber.Map{"error": err.Error()}
	}

	body := fiber.Map{"error": err.Error()}
	var stageErr *indexing.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
	}
	if errors.Is(err, context.DeadlineExceeded) {
		body["timeout"] = true
	}
	return fiber.StatusInternalServerError, body
}

type runView struct {
	ID                string     `json:"id"`
	Trigger           string     `json:"trigger"`
	Status            string     `json:"status"`
	TotalChunks       int        `json:"totalChunks"`
	Collections       []string   `json:"databases"`
	FailedCollections []string   `json:"failedCollections"`
	UsedFallback      bool       `json:"usedFallback"`
	Pruned            int        `json:"pruned"`
	Error             string     `json:"error,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	DurationMS        int64      `json:"duration"`
}

func newRunView(r models.SyncRun) runView {
	return runView{
		ID:                r.ID,
		Trigger:           r.Trigger,
		Status:            r.Status,
		TotalChunks:       r.TotalChunks,
		Collections:       r.Collections,
		FailedCollections: r.FailedCollections,
		UsedFallback:      r.UsedFallback,
		Pruned:            r.Pruned,
		Error:             r.Error,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		DurationMS:        r.DurationMS,
	}
}
