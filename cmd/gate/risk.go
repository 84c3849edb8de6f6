package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trading-gate/internal/interfaces"
	"trading-gate/internal/risk/riskhttp"
	"trading-gate/internal/store"
)

var riskURL string

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Query or drive a running risk service",
}

var riskStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current risk snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := riskClient(cmd)
		if err != nil {
			return err
		}
		snap, err := client.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, snap)
	},
}

var riskCanAdmitCmd = &cobra.Command{
	Use:   "can-admit <risk>",
	Short: "Ask whether a trade risking the given amount would be admitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proposed, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("bad risk amount: %w", err)
		}
		client, err := riskClient(cmd)
		if err != nil {
			return err
		}
		d, err := client.CanAdmit(cmd.Context(), proposed)
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var riskCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Re-evaluate the circuit breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := riskClient(cmd)
		if err != nil {
			return err
		}
		active, err := client.CheckDailyLoss(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "circuit_breaker_active=%t\n", active)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.PersistentFlags().StringVar(&riskURL, "url", "", "risk service base URL (default service.url, then service.addr on localhost)")
	riskCmd.AddCommand(riskStateCmd, riskCanAdmitCmd, riskCheckCmd)
}

func riskClient(cmd *cobra.Command) (interfaces.RiskAdmitter, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return riskhttp.NewClient(serviceURL(cfg, riskURL), time.Duration(cfg.Service.TimeoutSeconds)*time.Second), nil
}

func serviceURL(cfg *store.Config, override string) string {
	switch {
	case override != "":
		return override
	case cfg.Service.URL != "":
		return cfg.Service.URL
	}
	addr := cfg.Service.Addr
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
