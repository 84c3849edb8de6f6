package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"trading-gate/internal/logger"
	"trading-gate/internal/risk/riskhttp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the risk service in front of the shared ledger",
	Long: `Serve exposes the risk manager over HTTP so every strategy process admits
trades against one ledger. It also rolls the trading day at IST midnight,
re-checks the circuit breaker every minute and writes the EOD summary after
the close.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	compressOldLogs(ctx)

	admitter, closeLedger, err := initializeRiskAdmitter(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize risk manager", err)
		return err
	}
	defer closeLedger()

	loop := &dayLoop{risk: admitter, eod: initializeEOD(cfg)}
	loop.tick(ctx, time.Now())

	srv := &http.Server{
		Addr:              cfg.Service.Addr,
		Handler:           riskhttp.NewHandler(admitter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Risk service listening", "addr", cfg.Service.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	tick := time.NewTicker(time.Minute)
	defer tick.Stop()

	for {
		select {
		case now := <-tick.C:
			loop.tick(ctx, now)
		case err := <-errc:
			logger.ErrorWithErr(ctx, "Risk service stopped", err)
			return err
		case <-ctx.Done():
			logger.Info(ctx, "Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.ErrorWithErr(shutdownCtx, "Graceful shutdown failed", err)
			}
			if p, err := loop.eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(shutdownCtx, "EOD CSV written", "path", p)
			}
			return nil
		}
	}
}
