package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/health-research/backend/internal/cache"
	"github.com/health-research/backend/internal/ingestion"
	"github.com/health-research/backend/internal/llm"
	"github.com/health-research/backend/internal/retrieval"
	"github.com/health-research/backend/internal/storage/sqlite"
	"github.com/health-research/backend/pkg/config"
	"github.com/health-research/backend/pkg/logger"
)

var (
	cfg     *config.Config
	workers int
)

var rootCmd = &cobra.Command{
	Use:   "kbload",
	Short: "Load documents into the health research knowledge base",
	Long: `kbload indexes health documents into the configured retrieval backend
and records them in the audit database. Configuration is read the same way
as the API server (config.yaml, HEALTH_AGENTS_* environment, .env).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			level, _ = cmd.Flags().GetString("log-level")
		}
		return logger.Init(level, cfg.Logging.Format, cfg.Logging.OutputPath)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error); overrides logging.level")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", ingestion.DefaultWorkers, "concurrent indexing workers")

	rootCmd.AddCommand(seedCmd, ingestCmd)
}

// knowledgeBase is everything a load command writes to. close releases it in
// reverse order of opening.
type knowledgeBase struct {
	processor *ingestion.Processor
	results   cache.Store
	closers   []func() error
}

func openKnowledgeBase(ctx context.Context) (*knowledgeBase, error) {
	kb := &knowledgeBase{}

	var embedder llm.Embedder
	if cfg.Retrieval.Backend == retrieval.BackendMilvus {
		e, err := llm.NewEmbedder(llm.Config{
			Provider:       cfg.Pipeline.Provider,
			APIKey:         cfg.Pipeline.APIKey,
			BaseURL:        cfg.Pipeline.BaseURL,
			EmbeddingModel: cfg.Pipeline.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	retriever, err := retrieval.New(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}
	kb.closers = append(kb.closers, retriever.Close)

	var recorder ingestion.DocumentRecorder
	if cfg.SQLite.Enabled {
		audit, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			kb.close()
			return nil, err
		}
		kb.closers = append(kb.closers, audit.Close)
		if err := audit.InitSchema(ctx); err != nil {
			kb.close()
			return nil, err
		}
		recorder = audit
	}

	kb.results, err = cache.New(ctx, cfg)
	if err != nil {
		kb.close()
		return nil, err
	}
	if kb.results != nil {
		kb.closers = append(kb.closers, kb.results.Close)
	}

	kb.processor = ingestion.NewProcessor(retriever, ingestion.Options{
		Workers:  workers,
		Recorder: recorder,
	})
	kb.closers = append(kb.closers, func() error {
		kb.processor.Close()
		return nil
	})

	return kb, nil
}

// invalidate drops cached answers that may predate the new documents.
func (kb *knowledgeBase) invalidate(ctx context.Context) {
	if kb.results == nil {
		return
	}
	if err := kb.results.Invalidate(ctx); err != nil {
		logger.Warn("Failed to invalidate result cache", zap.Error(err))
	}
}

func (kb *knowledgeBase) close() {
	for i := len(kb.closers) - 1; i >= 0; i-- {
		if err := kb.closers[i](); err != nil {
			logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
}

func report(cmd *cobra.Command, chunks int) {
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks into the %s backend.\n", chunks, cfg.Retrieval.Backend)
}
