package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/storage/sqlite"
	"github.com/health-research/backend/pkg/logger"
)

type FeedbackHandler struct {
	controller *controller.Controller
	audit      *sqlite.Client
}

// NewFeedbackHandler takes an optional audit store for the stats endpoint.
func NewFeedbackHandler(ctrl *controller.Controller, audit *sqlite.Client) *FeedbackHandler {
	return &FeedbackHandler{
		controller: ctrl,
		audit:      audit,
	}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		SummaryID            string          `json:"summary_id"`
		Rating               json.RawMessage `json:"rating"`
		Comments             string          `json:"comments"`
		ImprovementRequested bool            `json:"improvement_requested"`
		SessionID            string          `json:"session_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp := h.controller.HandleFeedback(c.UserContext(), req.SummaryID, decodeRating(req.Rating),
		req.Comments, req.ImprovementRequested, req.SessionID)
	return c.Status(statusFor(resp)).JSON(resp)
}

func (h *FeedbackHandler) GetStats(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Audit storage is disabled",
		})
	}

	stats, err := h.audit.FeedbackStats(c.UserContext())
	if err != nil {
		logger.Error("Failed to load feedback stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load feedback stats",
		})
	}

	return c.JSON(stats)
}

// decodeRating keeps integers as int64 so the controller can tell 4 from 4.5
// or "4". Anything else is passed through and rejected there.
func decodeRating(raw json.RawMessage) any {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
