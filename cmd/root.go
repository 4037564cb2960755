package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "subiq",
	Short: "Sub_id quality classification pipeline",
	Long:  "Aggregates daily sub_id metrics into trailing windows, classifies each source against per-vertical rate thresholds, and measures whether confirmed actions worked.",
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
