package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/health-research/backend/internal/api"
	"github.com/health-research/backend/internal/cache"
	"github.com/health-research/backend/internal/controller"
	"github.com/health-research/backend/internal/ingestion"
	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/metrics"
	"github.com/health-research/backend/internal/middleware/ratelimit"
	"github.com/health-research/backend/internal/pipeline"
	"github.com/health-research/backend/internal/retrieval"
	"github.com/health-research/backend/internal/session"
	"github.com/health-research/backend/internal/storage/sqlite"
	"github.com/health-research/backend/internal/validation"
	"github.com/health-research/backend/pkg/config"
	appLogger "github.com/health-research/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Health Research Agents API Server")
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmCfg := llm.Config{
		Provider:       cfg.Pipeline.Provider,
		Model:          cfg.Pipeline.Model,
		APIKey:         cfg.Pipeline.APIKey,
		BaseURL:        cfg.Pipeline.BaseURL,
		EmbeddingModel: cfg.Pipeline.EmbeddingModel,
		Temperature:    cfg.Pipeline.Temperature,
		MaxTokens:      cfg.Pipeline.MaxTokens,
	}

	completer, err := llm.New(llmCfg)
	if errors.Is(err, llm.ErrMissingCredentials) {
		appLogger.Warn("No provider credentials configured, using the templated pipeline",
			zap.String("provider", cfg.Pipeline.Provider),
		)
	} else if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}

	var embedder llm.Embedder
	if cfg.Retrieval.Backend == retrieval.BackendMilvus {
		embedder, err = llm.NewEmbedder(llmCfg)
		if err != nil {
			appLogger.Fatal("Failed to create embedding client", zap.Error(err))
		}
	}

	retriever, err := retrieval.New(ctx, cfg, embedder)
	if err != nil {
		appLogger.Fatal("Failed to create retriever", zap.Error(err))
	}
	defer retriever.Close()

	var (
		audit       *sqlite.Client
		docRecorder ingestion.DocumentRecorder
		recorder    controller.Recorder
	)
	if cfg.SQLite.Enabled {
		audit, err = sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer audit.Close()

		if err := audit.InitSchema(ctx); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		docRecorder, recorder = audit, audit
	}

	results, err := cache.New(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to create result cache", zap.Error(err))
	}
	if results != nil {
		defer results.Close()
	}

	processor := ingestion.NewProcessor(retriever, ingestion.Options{Recorder: docRecorder})
	defer processor.Close()

	if cfg.Retrieval.SeedPath != "" {
		n, err := processor.Seed(ctx, cfg.Retrieval.SeedPath, false)
		if err != nil {
			appLogger.Warn("Failed to seed knowledge base", zap.Error(err))
		} else if n > 0 && results != nil {
			if err := results.Invalidate(ctx); err != nil {
				appLogger.Warn("Failed to invalidate result cache", zap.Error(err))
			}
		}
	}

	p := pipeline.New(pipeline.Config{
		Completer: completer,
		Retriever: retriever,
		TopK:      cfg.Retrieval.TopK,
	})

	sessions := session.NewStore(session.Config{
		Timeout: time.Duration(cfg.Session.TimeoutMinutes) * time.Minute,
	})
	go sessions.Run(ctx, time.Duration(cfg.Session.CleanupIntervalSeconds)*time.Second)

	ctrl := controller.New(controller.Config{
		Validator: validation.New(cfg.Validation.MinLength, cfg.Validation.MaxLength),
		Sessions:  sessions,
		Runner:    pipeline.WithCache(p, results),
		Timeout:   time.Duration(cfg.Pipeline.TimeoutSec) * time.Second,
		Recorder:  recorder,
	})
	ctrl.Initialize()

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
	})
	go limiter.Run(ctx)

	app := api.NewApp(api.Deps{
		Controller:       ctrl,
		Processor:        processor,
		Cache:            results,
		Audit:            audit,
		RateLimiter:      limiter,
		PipelineMode:     p.Mode(),
		RetrievalBackend: retriever.Backend(),
		Server:           cfg.Server,
		AccessLog:        true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("pipeline", p.Mode()),
		zap.String("retrieval", retriever.Backend()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
