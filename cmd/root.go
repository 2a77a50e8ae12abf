package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reconai/stategate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stategate",
	Short: "Envelope gateway for the ReconAI dashboard",
	Long:  "Fetches versioned lifecycle envelopes from the ReconAI backend, validates them fail-closed, derives panel render state, and audits every fetch outcome.",
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
