package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/middleware/validation"
	"github.com/alpa-strategie/aia-backend/internal/search"
	"github.com/alpa-strategie/aia-backend/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

type SearchHandler struct {
	searcher    Searcher
	defaultTopK int
	maxTopK     int
}

func NewSearchHandler(searcher Searcher, defaultTopK, maxTopK int) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = search.DefaultTopK
	}
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	return &SearchHandler{
		searcher:    searcher,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  *int   `json:"topK"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if q, ok := c.Locals(validation.SanitizedQueryKey).(string); ok {
		req.Query = q
	}

	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK > h.maxTopK {
		topK = h.maxTopK
	}

	assembled, err := h.searcher.Search(c.UserContext(), req.Query, topK)
	if errors.Is(err, search.ErrInvalidQuery) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required and topK must be at least 1",
		})
	}
	if err != nil {
		logger.Error("Failed to search knowledge base", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search knowledge base",
		})
	}

	return c.JSON(fiber.Map{
		"context": assembled,
		"found":   assembled != "",
	})
}
