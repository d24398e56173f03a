package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed [seed-file]",
	Short: "Index the starter health documents",
	Long: `Index the documents of a YAML seed file. The knowledge base is left alone
when it already holds documents unless --force is given. Without an argument
the configured retrieval.seedPath is used.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Retrieval.SeedPath
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")

		ctx := cmd.Context()
		kb, err := openKnowledgeBase(ctx)
		if err != nil {
			logger.Error("Failed to open knowledge base", zap.Error(err))
			return err
		}
		defer kb.close()

		n, err := kb.processor.Seed(ctx, path, force)
		if err != nil {
			logger.Error("Failed to seed knowledge base", zap.String("path", path), zap.Error(err))
			return err
		}
		if n > 0 {
			kb.invalidate(ctx)
		}

		report(cmd, n)
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("force", false, "index even if the knowledge base already has documents")
}
