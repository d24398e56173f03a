package validation

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
)

// Config bounds request bodies before they reach the handlers. Content rules
// (length in characters, unsafe patterns) belong to the controller.
type Config struct {
	MaxQueryBytes       int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryBytes == 0 {
		cfg.MaxQueryBytes = 16 * 1024
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		if contentType := c.Get(fiber.HeaderContentType); contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return reject(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
		}

		path := c.Path()
		switch {
		case strings.HasSuffix(path, "/api/v1/query"):
			var req map[string]any
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			// A missing or null query is left to the controller, which
			// answers with a failed Response.
			if !optionalString(req, "query") {
				return reject(c, fiber.StatusBadRequest, "Query must be a string")
			}
			query, _ := req["query"].(string)
			if len(query) > cfg.MaxQueryBytes {
				cfg.Logger.Warn("Oversized query rejected",
					zap.String("ip", c.IP()),
					zap.Int("bytes", len(query)),
				)
				return reject(c, fiber.StatusRequestEntityTooLarge, "Query exceeds maximum length")
			}
			if !optionalString(req, "session_id") {
				return reject(c, fiber.StatusBadRequest, "session_id must be a string")
			}

		case strings.HasSuffix(path, "/api/v1/feedback"):
			var req map[string]any
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			if id, ok := req["summary_id"].(string); !ok || id == "" {
				return reject(c, fiber.StatusBadRequest, "summary_id is required and must be a string")
			}
			if _, ok := req["rating"]; !ok {
				return reject(c, fiber.StatusBadRequest, "rating is required")
			}
			if !optionalString(req, "comments") || !optionalString(req, "session_id") {
				return reject(c, fiber.StatusBadRequest, "comments and session_id must be strings")
			}

		case strings.HasSuffix(path, "/api/v1/documents"):
			var req struct {
				Documents []map[string]any `json:"documents"`
			}
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			if len(req.Documents) == 0 {
				return reject(c, fiber.StatusBadRequest, "At least one document is required")
			}
			for _, doc := range req.Documents {
				content, ok := doc["content"].(string)
				if !ok || strings.TrimSpace(content) == "" {
					return reject(c, fiber.StatusBadRequest, "Every document needs text content")
				}
				if len(content) > cfg.MaxDocumentSize {
					return reject(c, fiber.StatusRequestEntityTooLarge, "Document content exceeds maximum size")
				}
			}
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func optionalString(req map[string]any, key string) bool {
	v, ok := req[key]
	if !ok || v == nil {
		return true
	}
	_, ok = v.(string)
	return ok
}

func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
