package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trading-gate/internal/validation"
)

var errHalted = errors.New("trading day halted")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the day-start validation and exit non-zero if the day is halted",
	Long: `Validate purges previous-day state, refreshes the instrument catalog and
resolves every configured strategy. If the catalog cannot be loaded or any
strategy fails to resolve, the whole day is halted and the command exits
non-zero. The report is written under validation.report_dir.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	compressOldLogs(ctx)

	src, err := initializeSources(ctx, cfg)
	if err != nil {
		return err
	}

	orch, err := validation.New(validation.OptionsFromConfig(cfg), src.catalog, src.fallback, src.spots, initializeResolver(cfg), nil)
	if err != nil {
		return err
	}

	report, err := orch.Run(ctx)
	fmt.Fprint(cmd.OutOrStdout(), report.Summary())
	if err != nil {
		return err
	}
	if report.Halt {
		return errHalted
	}
	return nil
}
