package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/models"
	"github.com/health-research/backend/pkg/logger"
)

type QueryHandler struct {
	controller *controller.Controller
}

func NewQueryHandler(ctrl *controller.Controller) *QueryHandler {
	return &QueryHandler{
		controller: ctrl,
	}
}

// HandleQuery always answers with a Response body; the HTTP status mirrors
// its outcome.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp := h.controller.HandleQuery(c.UserContext(), req.Query, req.SessionID)
	return c.Status(statusFor(resp)).JSON(resp)
}

func statusFor(resp *models.Response) int {
	switch {
	case resp.IsSuccessful():
		return fiber.StatusOK
	case resp.ErrorMessage == controller.InvalidQueryMessage,
		resp.ErrorMessage == controller.InvalidRatingMessage,
		resp.ErrorMessage == controller.InvalidCommentMessage:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
