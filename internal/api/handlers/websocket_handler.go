package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/indexing"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

const progressBuffer = 64

// RequireUpgrade rejects plain HTTP requests on a websocket route.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleProgress starts a reindex and streams its checkpoints to the client.
// The run is not cancelled when the client goes away.
func (h *SyncHandler) HandleProgress(c *websocket.Conn) {
	logger.Info("Sync progress stream opened")

	defer func() {
		c.Close()
		logger.Info("Sync progress stream closed")
	}()

	ctx, cancel := h.runContext(context.Background(), "ws")
	defer cancel()

	h.streamReindex(ctx, c.WriteJSON)
}

// streamReindex runs one reindex and hands every event to send, ending with
// exactly one complete or error event. Checkpoints that arrive faster than
// send drains them are dropped.
func (h *SyncHandler) streamReindex(ctx context.Context, send func(v interface{}) error) {
	events := make(chan indexing.Progress, progressBuffer)
	type outcome struct {
		result *indexing.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := h.reindexer.ReindexAll(ctx, func(p indexing.Progress) {
			select {
			case events <- p:
			default:
				logger.Debug("Dropped sync progress event", zap.String("stage", string(p.Stage)))
			}
		})
		done <- outcome{result: result, err: err}
	}()

	connected := true
	emit := func(v interface{}) {
		if !connected {
			return
		}
		if err := send(v); err != nil {
			logger.Warn("Failed to write sync progress", zap.Error(err))
			connected = false
		}
	}

	for {
		select {
		case p := <-events:
			emit(progressEvent(p))
		case out := <-done:
		drain:
			for {
				select {
				case p := <-events:
					emit(progressEvent(p))
				default:
					break drain
				}
			}
			if out.err != nil {
				_, body := syncError(out.err)
				body["type"] = "error"
				emit(body)
				return
			}
			body := syncResponse(out.result)
			body["type"] = "complete"
			emit(body)
			return
		}
	}
}

func progressEvent(p indexing.Progress) fiber.Map {
	return fiber.Map{
		"type":    "progress",
		"stage":   p.Stage,
		"batch":   p.Batch,
		"batches": p.Batches,
		"done":    p.Done,
		"total":   p.Total,
	}
}
