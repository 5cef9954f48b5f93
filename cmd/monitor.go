package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xMathyu/hvac-scanner/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Report outcome monitoring",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate recent reports once and deliver any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, cfg.Scanner.ConfidenceThreshold),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		alerts, err := checker.CheckOnce(ctx)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
			return nil
		}
		format, _ := cmd.Flags().GetString("format")
		return writeOutput(cmd.OutOrStdout(), format, alerts)
	},
}

func init() {
	monitorCheckCmd.Flags().String("format", "json", "output format: json or yaml")
	monitorCmd.AddCommand(monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}
