package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/cache"
	"github.com/health-research/backend/internal/ingestion"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	cache     cache.Store
}

// NewDocumentHandler takes the result cache, if any, so cached answers are
// dropped once the knowledge base changes.
func NewDocumentHandler(processor *ingestion.Processor, results cache.Store) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		cache:     results,
	}
}

func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	var req struct {
		Documents []models.Document `json:"documents"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	for i := range req.Documents {
		if req.Documents[i].DocID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Every document needs a doc_id",
			})
		}
		if req.Documents[i].Source == "" {
			req.Documents[i].Source = "api"
		}
	}

	chunks, err := h.processor.ProcessDocuments(c.UserContext(), req.Documents)
	if err != nil {
		logger.Error("Failed to process documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process documents",
		})
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(c.UserContext()); err != nil {
			logger.Warn("Failed to invalidate result cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"message":   "Documents processed successfully",
		"documents": len(req.Documents),
		"chunks":    chunks,
	})
}
