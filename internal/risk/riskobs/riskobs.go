// Package riskobs wraps a RiskAdmitter with spans, structured risk events and
// the audit log.
package riskobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
	"trading-gate/internal/trace"
	"trading-gate/internal/tradelog"
	"trading-gate/internal/types"
)

type observableAdmitter struct {
	admitter interfaces.RiskAdmitter
}

var _ interfaces.RiskAdmitter = (*observableAdmitter)(nil)

func Wrap(admitter interfaces.RiskAdmitter) interfaces.RiskAdmitter {
	return &observableAdmitter{
		admitter: admitter,
	}
}

func (oa *observableAdmitter) CanAdmit(ctx context.Context, proposedRisk decimal.Decimal) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "risk.CanAdmit")
	defer span.End()

	d, err := oa.admitter.CanAdmit(ctx, proposedRisk)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Admission check failed", err,
			"proposed_risk", proposedRisk.String(),
		)
		return d, err
	}

	logger.DebugSkip(ctx, 1, "Admission check",
		"proposed_risk", proposedRisk.String(),
		"admitted", d.Admitted,
		"reason", string(d.Reason),
		"heat_after", d.HeatAfter.String(),
	)
	audit(ctx, decisionEntry(tradelog.EventCanAdmit, types.Position{}, d))
	return d, nil
}

func (oa *observableAdmitter) Admit(ctx context.Context, p types.Position) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "risk.Admit")
	defer span.End()

	start := time.Now()
	d, err := oa.admitter.Admit(ctx, p)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Admission failed", err,
			"strategy", p.Strategy,
			"symbol", p.Symbol,
		)
		return d, err
	}

	if d.Admitted {
		logger.InfoSkip(ctx, 1, "Position admitted",
			"strategy", p.Strategy,
			"symbol", p.Symbol,
			"position_id", d.PositionID,
			"risk", d.ProposedRisk.String(),
			"heat_after", d.HeatAfter.String(),
			"open_positions", d.OpenPositions+1,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		logger.Risk(ctx, p.Symbol, "ADMISSION_REJECTED",
			"strategy", p.Strategy,
			"reason", string(d.Reason),
			"detail", d.Detail,
			"risk", d.ProposedRisk.String(),
			"heat_before", d.HeatBefore.String(),
		)
	}
	p.ID = d.PositionID
	audit(ctx, decisionEntry(tradelog.EventAdmit, p, d))
	return d, nil
}

func (oa *observableAdmitter) RegisterEntry(ctx context.Context, p types.Position) error {
	ctx, span := trace.StartSpan(ctx, "risk.RegisterEntry")
	defer span.End()

	if err := oa.admitter.RegisterEntry(ctx, p); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Entry registration failed", err,
			"position_id", p.ID,
			"symbol", p.Symbol,
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Entry registered",
		"position_id", p.ID,
		"strategy", p.Strategy,
		"symbol", p.Symbol,
		"risk", p.Risk().String(),
	)
	audit(ctx, decisionEntry(tradelog.EventEntry, p, types.Decision{Admitted: true, ProposedRisk: p.Risk()}))
	return nil
}

func (oa *observableAdmitter) RegisterExit(ctx context.Context, positionID string, realizedPnL decimal.Decimal) error {
	ctx, span := trace.StartSpan(ctx, "risk.RegisterExit")
	defer span.End()

	// strategy is looked up for the audit line only
	var strategy, symbol string
	if snap, err := oa.admitter.Snapshot(ctx); err == nil {
		for _, p := range snap.Positions {
			if p.ID == positionID {
				strategy, symbol = p.Strategy, p.Symbol
			}
		}
	}

	if err := oa.admitter.RegisterExit(ctx, positionID, realizedPnL); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Exit registration failed", err,
			"position_id", positionID,
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Exit registered",
		"position_id", positionID,
		"symbol", symbol,
		"realized_pnl", realizedPnL.String(),
	)
	pnl, _ := realizedPnL.Float64()
	audit(ctx, tradelog.DecisionEntry{
		Event:       tradelog.EventExit,
		Strategy:    strategy,
		Symbol:      symbol,
		PositionID:  positionID,
		RealizedPnL: pnl,
	})
	return nil
}

func (oa *observableAdmitter) CheckDailyLoss(ctx context.Context) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "risk.CheckDailyLoss")
	defer span.End()

	active, err := oa.admitter.CheckDailyLoss(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Daily loss check failed", err)
		return false, err
	}
	if !active {
		logger.DebugSkip(ctx, 1, "Daily loss check passed")
		return false, nil
	}

	snap, err := oa.admitter.Snapshot(ctx)
	if err != nil {
		logger.Risk(ctx, "", "CIRCUIT_BREAKER_ACTIVE")
		return true, nil
	}
	logger.Risk(ctx, "", "CIRCUIT_BREAKER_ACTIVE",
		"breaker_reason", snap.BreakerReason,
		"breaker_metric", snap.BreakerMetric.String(),
		"daily_pnl_pct", snap.DailyPnLPct.StringFixed(2),
		"heat", snap.Heat.String(),
		"tripped_at", snap.BreakerTrippedAt,
	)
	metric, _ := snap.BreakerMetric.Float64()
	audit(ctx, tradelog.DecisionEntry{
		Event:  tradelog.EventBreaker,
		Reason: snap.BreakerReason,
		Detail: snap.BreakerMetric.String(),
		Extra:  map[string]any{"metric": metric},
	})
	return true, nil
}

func (oa *observableAdmitter) ResetDay(ctx context.Context, day time.Time, equity decimal.Decimal) error {
	ctx, span := trace.StartSpan(ctx, "risk.ResetDay")
	defer span.End()

	if err := oa.admitter.ResetDay(ctx, day, equity); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Day reset failed", err,
			"day", day.Format("2006-01-02"),
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Risk state reset for new trading day",
		"day", day.Format("2006-01-02"),
		"equity", equity.String(),
	)
	audit(ctx, tradelog.DecisionEntry{Event: tradelog.EventReset, Detail: day.Format("2006-01-02")})
	return nil
}

func (oa *observableAdmitter) Snapshot(ctx context.Context) (types.RiskSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "risk.Snapshot")
	defer span.End()

	snap, err := oa.admitter.Snapshot(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Risk snapshot failed", err)
	}
	return snap, err
}

func decisionEntry(event string, p types.Position, d types.Decision) tradelog.DecisionEntry {
	risk, _ := d.ProposedRisk.Float64()
	heat, _ := d.HeatAfter.Float64()
	entry, _ := p.EntryPrice.Float64()
	stop, _ := p.StopLossPrice.Float64()
	return tradelog.DecisionEntry{
		Event:        event,
		Strategy:     p.Strategy,
		Symbol:       p.Symbol,
		PositionID:   p.ID,
		Side:         string(p.Side),
		Qty:          p.Quantity,
		EntryPrice:   entry,
		StopLoss:     stop,
		Admitted:     d.Admitted,
		Reason:       string(d.Reason),
		Detail:       d.Detail,
		ProposedRisk: risk,
		HeatAfter:    heat,
	}
}

func audit(ctx context.Context, e tradelog.DecisionEntry) {
	if err := tradelog.AppendDecision(e); err != nil {
		logger.Warn(ctx, "Failed to append risk audit entry", "event", e.Event, "error", err)
	}
}
