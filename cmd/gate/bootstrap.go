package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"trading-gate/internal/broker/brokerobs"
	"trading-gate/internal/broker/zerodha"
	"trading-gate/internal/eod"
	"trading-gate/internal/eod/eodobs"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
	"trading-gate/internal/resolver"
	"trading-gate/internal/risk"
	"trading-gate/internal/risk/ledger"
	"trading-gate/internal/risk/riskobs"
	"trading-gate/internal/store"
	"trading-gate/internal/trace"
	"trading-gate/internal/tradelog"
)

// initializeSystem loads .env and initializes logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig loads the configuration and points the audit log at its log dir
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}
	tradelog.SetDir(cfg.LogDir)
	return cfg, nil
}

// compressOldLogs compresses old audit files if retention is configured
func compressOldLogs(ctx context.Context) {
	v := os.Getenv("GATE_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid GATE_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

type sources struct {
	catalog  interfaces.CatalogSource
	fallback interfaces.CatalogSource
	spots    interfaces.SpotSource
}

// initializeSources builds the catalog feed, the optional synthetic fallback
// and the spot source, each wrapped with observability
func initializeSources(ctx context.Context, cfg *store.Config) (sources, error) {
	p := zerodha.ParamsFromEnv(cfg)

	cat, err := zerodha.NewCatalogSource(cfg, p)
	if err != nil {
		return sources{}, fmt.Errorf("catalog source: %w", err)
	}
	spots, err := zerodha.NewSpotSource(cfg, p)
	if err != nil {
		return sources{}, fmt.Errorf("spot source: %w", err)
	}

	s := sources{
		catalog: brokerobs.WrapCatalog(cat),
		spots:   brokerobs.WrapSpot(spots),
	}
	if cfg.Catalog.AllowSyntheticFallback {
		s.fallback = brokerobs.WrapCatalog(zerodha.NewSyntheticFromConfig(cfg))
	}

	if cfg.Mode == store.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode")
	}
	if cfg.Catalog.Source == store.SourceSynthetic {
		logger.Warn(ctx, "Using SYNTHETIC instrument catalog")
	}
	logger.Info(ctx, "Sources initialized",
		"catalog", cfg.Catalog.Source,
		"spot", cfg.Spot.Source,
		"synthetic_fallback", s.fallback != nil,
	)
	return s, nil
}

// initializeResolver builds the resolver with the configured ATM tie-break
func initializeResolver(cfg *store.Config) interfaces.Resolver {
	return resolver.New(resolver.Options{TieBreak: resolver.TieBreak(cfg.Resolver.ATMTieBreak)})
}

// initializeRiskAdmitter opens the ledger and returns the risk manager with
// observability. The returned func closes the ledger.
func initializeRiskAdmitter(ctx context.Context, cfg *store.Config) (interfaces.RiskAdmitter, func() error, error) {
	led, err := ledger.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	mgr, err := risk.NewManager(led, risk.LimitsFromConfig(cfg))
	if err != nil {
		_ = led.Close()
		return nil, nil, err
	}

	logger.Info(ctx, "Risk manager initialized",
		"ledger", cfg.Ledger.Backend,
		"per_trade_risk_pct", cfg.Risk.PerTradeRiskPct,
		"max_heat_pct", cfg.Risk.MaxHeatPct,
		"daily_loss_limit_pct", cfg.Risk.DailyLossLimitPct,
		"max_open_positions", cfg.Risk.MaxOpenPositions,
	)
	return riskobs.Wrap(mgr), led.Close, nil
}

// initializeEOD wraps the EOD summarizer with observability and installs it
// as the default
func initializeEOD(cfg *store.Config) interfaces.EodSummarizer {
	s := eodobs.Wrap(eod.NewSummarizer(cfg.EOD.Dir))
	eod.SetDefaultSummarizer(s)
	return s
}
