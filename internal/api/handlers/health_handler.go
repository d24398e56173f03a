package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/health-research/backend/internal/controller"
)

type HealthHandler struct {
	controller *controller.Controller
	mode       string
	retrieval  string
}

// NewHealthHandler reports the pipeline mode ("llm" or "fallback") and the
// retrieval backend alongside liveness.
func NewHealthHandler(ctrl *controller.Controller, mode, retrievalBackend string) *HealthHandler {
	return &HealthHandler{
		controller: ctrl,
		mode:       mode,
		retrieval:  retrievalBackend,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"time":      time.Now().Unix(),
		"pipeline":  h.mode,
		"retrieval": h.retrieval,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if !h.controller.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "initializing",
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
