package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hvac-scanner",
	Short: "HVAC nameplate scanning and inspection reports",
	Long:  "Reads HVAC equipment labels and photos with a vision model, keeps an equipment inventory with per-field provenance, and produces inspection reports.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
