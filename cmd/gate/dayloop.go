package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
)

// dayLoop runs the service's periodic housekeeping.
type dayLoop struct {
	risk interfaces.RiskAdmitter
	eod  interfaces.EodSummarizer
}

// tick rolls the ledger into a new IST trading day when the date changes,
// re-evaluates the circuit breaker and writes the EOD summary once the
// market has closed.
func (l *dayLoop) tick(ctx context.Context, now time.Time) {
	today := expiry.Today(now)

	snap, err := l.risk.Snapshot(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to read risk state", err)
		return
	}
	if snap.TradingDay.Before(today) {
		// zero equity carries yesterday's close forward
		if err := l.risk.ResetDay(ctx, today, decimal.Zero); err != nil {
			logger.ErrorWithErr(ctx, "Failed to reset trading day", err, "day", today.Format("2006-01-02"))
			return
		}
		logger.Info(ctx, "Trading day rolled", "day", today.Format("2006-01-02"), "carried_positions", len(snap.Positions))
	}

	if _, err := l.risk.CheckDailyLoss(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Circuit breaker check failed", err)
	}

	if l.eod == nil {
		return
	}
	if ok, _ := l.eod.ShouldRunNow(); ok {
		if p, err := l.eod.SummarizeToday(); err == nil && p != "" {
			logger.Info(ctx, "EOD CSV written", "path", p)
		}
	}
}
