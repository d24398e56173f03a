package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/health-research/backend/internal/api/handlers"
	"github.com/health-research/backend/internal/cache"
	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/ingestion"
	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/middleware/ratelimit"
	"github.com/health-research/backend/internal/middleware/security"
	"github.com/health-research/backend/internal/middleware/validation"
	"github.com/health-research/backend/internal/storage/sqlite"
	"github.com/health-research/backend/pkg/config"
)

// Deps are the components the HTTP surface needs. Processor, Cache, Audit
// and RateLimiter are optional.
type Deps struct {
	Controller       *controller.Controller
	Processor        *ingestion.Processor
	Cache            cache.Store
	Audit            *sqlite.Client
	RateLimiter      *ratelimit.RateLimiter
	PipelineMode     string
	RetrievalBackend string
	Server           config.ServerConfig
	AccessLog        bool
}

func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(d.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(d.Server.WriteTimeout) * time.Second,
		BodyLimit:    d.Server.BodyLimit,
	})

	origins := "*"
	if len(d.Server.AllowedOrigins) > 0 {
		origins = strings.Join(d.Server.AllowedOrigins, ",")
	}

	app.Use(recover.New())
	if d.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: d.Server.AllowedOrigins,
		IsDevelopment:  d.Server.IsDevelopment,
	}))

	queryHandler := handlers.NewQueryHandler(d.Controller)
	feedbackHandler := handlers.NewFeedbackHandler(d.Controller, d.Audit)
	sessionHandler := handlers.NewSessionHandler(d.Controller, d.Audit)
	healthHandler := handlers.NewHealthHandler(d.Controller, d.PipelineMode, d.RetrievalBackend)
	wsHandler := handlers.NewWebSocketHandler(d.Controller)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware())
	}
	api.Use(validation.Middleware(validation.Config{}))

	api.Post("/query", queryHandler.HandleQuery)
	api.Post("/feedback", feedbackHandler.SubmitFeedback)
	api.Get("/feedback/stats", feedbackHandler.GetStats)

	api.Get("/sessions/active", sessionHandler.Active)
	api.Post("/sessions/cleanup", sessionHandler.Cleanup)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Get("/sessions/:id/responses", sessionHandler.ListResponses)

	if d.Processor != nil {
		documentHandler := handlers.NewDocumentHandler(d.Processor, d.Cache)
		api.Post("/documents", documentHandler.UploadDocuments)
	}

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	return app
}
