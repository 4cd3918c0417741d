package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dnc-scrub",
	Short: "DNC risk scoring and FTC change-list ingestion",
	Long:  "Scores lead lists against the federal Do Not Call registry, deleted-number tracking and known litigators, and applies FTC change lists to the registry.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
