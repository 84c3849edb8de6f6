package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"trading-gate/internal/trace"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Pre-trade gate: daily instrument validation and portfolio risk admission",
	Long: `Gate sits between strategies and order placement.

It provides:
  - validate: refresh the instrument catalog and resolve every strategy's
    instrument spec, halting the day if any fails
  - resolve:  resolve a single instrument spec ad hoc
  - serve:    run the authoritative risk service over the shared ledger
  - risk:     query or drive a running risk service`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeSystem()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
}
