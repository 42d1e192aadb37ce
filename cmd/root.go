package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openquant/indexfill/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "indexfill",
	Short: "Point-in-time S&P 500 backfill pipeline",
	Long:  "Reconstructs historical index membership and backfills daily prices, dividend events and derived yield metrics through bronze, silver and gold layers.",
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
