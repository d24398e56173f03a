package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Index YAML, HTML or plain-text documents",
	Long: `Index one or more files. YAML files use the seed format, HTML pages are
stripped of navigation and scripts, and anything else is read as plain text.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kb, err := openKnowledgeBase(ctx)
		if err != nil {
			logger.Error("Failed to open knowledge base", zap.Error(err))
			return err
		}
		defer kb.close()

		n, err := kb.processor.IngestFiles(ctx, args)
		if err != nil {
			logger.Error("Failed to ingest files", zap.Strings("paths", args), zap.Error(err))
			return err
		}
		kb.invalidate(ctx)

		report(cmd, n)
		return nil
	},
}
