package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/storage/sqlite"
	"github.com/health-research/backend/pkg/logger"
)

type SessionHandler struct {
	controller *controller.Controller
	audit      *sqlite.Client
}

func NewSessionHandler(ctrl *controller.Controller, audit *sqlite.Client) *SessionHandler {
	return &SessionHandler{
		controller: ctrl,
		audit:      audit,
	}
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	history := h.controller.GetSessionState(c.Params("id"))
	if history.SessionID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found or expired",
		})
	}
	return c.JSON(history)
}

func (h *SessionHandler) Cleanup(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"removed": h.controller.CleanupSessions(),
	})
}

func (h *SessionHandler) Active(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active": h.controller.ActiveSessions(),
	})
}

func (h *SessionHandler) ListResponses(c *fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Audit storage is disabled",
		})
	}

	records, err := h.audit.ListResponses(c.UserContext(), c.Params("id"), c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to list responses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list responses",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": c.Params("id"),
		"responses":  records,
	})
}
