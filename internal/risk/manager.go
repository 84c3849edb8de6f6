// Package risk implements portfolio-level admission control: per-trade risk,
// aggregate heat, open-position count and a daily circuit breaker.
//
// All state lives in a Ledger. Every mutation, and every admission that
// registers a position, is one Ledger.Update transaction, so strategies in
// separate processes sharing a SQLite or Postgres ledger cannot both be
// admitted against the same stale heat.
package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/metrics"
	"trading-gate/internal/types"
)

// Breaker reasons recorded when the circuit breaker trips.
const (
	BreakerDailyLoss = "DAILY_LOSS"
	BreakerHeat      = "HEAT"
	BreakerDrawdown  = "DRAWDOWN"
)

var ErrNegativeRisk = errors.New("proposed risk cannot be negative")

type Manager struct {
	ledger Ledger
	limits Limits
	now    func() time.Time
}

var _ interfaces.RiskAdmitter = (*Manager)(nil)

func NewManager(ledger Ledger, limits Limits) (*Manager, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Manager{ledger: ledger, limits: limits, now: time.Now}, nil
}

func (m *Manager) Limits() Limits { return m.limits }

// PositionRisk is |entry - stop| * quantity.
func PositionRisk(p types.Position) decimal.Decimal {
	return p.Risk()
}

// PortfolioHeat recomputes open risk over equity from the full position set.
func (m *Manager) PortfolioHeat(ctx context.Context) (decimal.Decimal, error) {
	var heat decimal.Decimal
	err := m.ledger.View(ctx, func(s State) error {
		heat = s.Heat()
		return nil
	})
	return heat, err
}

// CanAdmit reports whether a trade risking proposedRisk would be admitted
// now. It does not change state; use Admit to check and register atomically.
func (m *Manager) CanAdmit(ctx context.Context, proposedRisk decimal.Decimal) (types.Decision, error) {
	if proposedRisk.IsNegative() {
		return types.Decision{}, ErrNegativeRisk
	}
	var d types.Decision
	err := m.ledger.View(ctx, func(s State) error {
		d = m.evaluate(s, proposedRisk)
		return nil
	})
	if err != nil {
		return types.Decision{}, err
	}
	recordDecision(d)
	return d, nil
}

// Admit evaluates p and, when admitted, registers it in the same ledger
// transaction. The breaker is checked first so a breach observed here blocks
// this admission and every later one today.
func (m *Manager) Admit(ctx context.Context, p types.Position) (types.Decision, error) {
	p, err := m.prepare(p)
	if err != nil {
		return types.Decision{}, err
	}

	var (
		d     types.Decision
		state State
	)
	err = m.ledger.Update(ctx, func(s *State) error {
		m.checkBreaker(s)
		if s.position(p.ID) >= 0 {
			d = types.Decision{Reason: types.RejectDuplicatePosition, Detail: "position " + p.ID + " already open", ProposedRisk: p.Risk()}
			state = s.Clone()
			return nil
		}
		d = m.evaluate(*s, p.Risk())
		if d.Admitted {
			s.Positions = append(s.Positions, p)
			d.PositionID = p.ID
		}
		state = s.Clone()
		return nil
	})
	if err != nil {
		return types.Decision{}, err
	}
	recordDecision(d)
	recordState(state)
	return d, nil
}

// RegisterEntry records a position opened outside Admit.
func (m *Manager) RegisterEntry(ctx context.Context, p types.Position) error {
	p, err := m.prepare(p)
	if err != nil {
		return err
	}
	var state State
	err = m.ledger.Update(ctx, func(s *State) error {
		if s.position(p.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicatePosition, p.ID)
		}
		s.Positions = append(s.Positions, p)
		state = s.Clone()
		return nil
	})
	if err == nil {
		recordState(state)
	}
	return err
}

// RegisterExit books realizedPnL into equity and removes the position.
func (m *Manager) RegisterExit(ctx context.Context, positionID string, realizedPnL decimal.Decimal) error {
	var state State
	err := m.ledger.Update(ctx, func(s *State) error {
		i := s.position(positionID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownPosition, positionID)
		}
		s.AccountEquity = s.AccountEquity.Add(realizedPnL)
		if s.AccountEquity.GreaterThan(s.PeakEquity) {
			s.PeakEquity = s.AccountEquity
		}
		s.Positions = append(s.Positions[:i], s.Positions[i+1:]...)
		state = s.Clone()
		return nil
	})
	if err == nil {
		recordState(state)
	}
	return err
}

// CheckDailyLoss trips the breaker if the daily loss limit, the heat limit
// or the drawdown limit is breached, and reports whether it is active.
func (m *Manager) CheckDailyLoss(ctx context.Context) (bool, error) {
	var state State
	err := m.ledger.Update(ctx, func(s *State) error {
		m.checkBreaker(s)
		state = s.Clone()
		return nil
	})
	if err != nil {
		return false, err
	}
	recordState(state)
	return state.BreakerActive, nil
}

// ResetDay starts a new trading day: the breaker is cleared and starting and
// peak equity are set to equity. A zero equity carries the previous close
// forward. Open positions carry over and keep counting towards heat.
func (m *Manager) ResetDay(ctx context.Context, day time.Time, equity decimal.Decimal) error {
	if equity.IsNegative() {
		return fmt.Errorf("equity cannot be negative, got %s", equity)
	}
	var state State
	err := m.ledger.Update(ctx, func(s *State) error {
		if !equity.IsZero() {
			s.AccountEquity = equity
		}
		s.TradingDay = expiry.DateOf(day)
		s.StartingEquity = s.AccountEquity
		s.PeakEquity = s.AccountEquity
		s.BreakerActive = false
		s.BreakerReason = ""
		s.BreakerMetric = decimal.Zero
		s.BreakerTrippedAt = time.Time{}
		state = s.Clone()
		return nil
	})
	if err == nil {
		recordState(state)
	}
	return err
}

// Snapshot returns the current state with derived heat and P&L.
func (m *Manager) Snapshot(ctx context.Context) (types.RiskSnapshot, error) {
	var snap types.RiskSnapshot
	err := m.ledger.View(ctx, func(s State) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

func (m *Manager) prepare(p types.Position) (types.Position, error) {
	p.Symbol = strings.TrimSpace(p.Symbol)
	if p.Symbol == "" {
		return p, fmt.Errorf("%w: symbol is required", ErrInvalidPosition)
	}
	if p.Quantity <= 0 {
		return p, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidPosition, p.Quantity)
	}
	if !p.EntryPrice.IsPositive() || p.StopLossPrice.IsNegative() {
		return p, fmt.Errorf("%w: entry %s stop %s", ErrInvalidPosition, p.EntryPrice, p.StopLossPrice)
	}
	if p.Side == "" {
		p.Side = types.SideBuy
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = m.now().UTC()
	}
	return p, nil
}

// evaluate applies the admission rules in order: breaker, equity, per-trade
// cap, heat, position count.
func (m *Manager) evaluate(s State, proposedRisk decimal.Decimal) types.Decision {
	heat := s.Heat()
	d := types.Decision{
		ProposedRisk:  proposedRisk,
		HeatBefore:    heat,
		HeatAfter:     heat,
		OpenPositions: len(s.Positions),
	}

	if s.BreakerActive {
		d.Reason = types.RejectCircuitBreaker
		d.Detail = fmt.Sprintf("breaker tripped on %s at %s", s.BreakerReason, s.BreakerMetric.StringFixed(4))
		return d
	}
	if !s.AccountEquity.IsPositive() {
		d.Reason = types.RejectNonPositiveEquity
		d.Detail = "account equity is " + s.AccountEquity.String()
		return d
	}

	tradePct := proposedRisk.Div(s.AccountEquity).Mul(hundred)
	if tradePct.GreaterThan(m.limits.PerTradeRiskPct) {
		d.Reason = types.RejectPerTradeCap
		d.Detail = fmt.Sprintf("trade risk %s%% exceeds %s%%", tradePct.StringFixed(2), m.limits.PerTradeRiskPct)
		return d
	}

	d.HeatAfter = s.OpenRisk().Add(proposedRisk).Div(s.AccountEquity)
	if d.HeatAfter.Mul(hundred).GreaterThan(m.limits.MaxHeatPct) {
		d.Reason = types.RejectHeatLimit
		d.Detail = fmt.Sprintf("heat would reach %s%% (max %s%%)", d.HeatAfter.Mul(hundred).StringFixed(2), m.limits.MaxHeatPct)
		return d
	}

	if len(s.Positions) >= m.limits.MaxOpenPositions {
		d.Reason = types.RejectMaxPositions
		d.Detail = fmt.Sprintf("%d positions open (max %d)", len(s.Positions), m.limits.MaxOpenPositions)
		return d
	}

	d.Admitted = true
	return d
}

// checkBreaker latches the breaker on the first breached limit. Once active
// it stays active until ResetDay.
func (m *Manager) checkBreaker(s *State) {
	if s.BreakerActive {
		return
	}
	trip := func(reason string, metric decimal.Decimal) {
		s.BreakerActive = true
		s.BreakerReason = reason
		s.BreakerMetric = metric
		s.BreakerTrippedAt = m.now().UTC()
	}

	if pnl := s.DailyPnLPct(); s.StartingEquity.IsPositive() && pnl.LessThanOrEqual(m.limits.DailyLossLimitPct.Neg()) {
		trip(BreakerDailyLoss, pnl)
		return
	}
	if heatPct := s.Heat().Mul(hundred); heatPct.GreaterThan(m.limits.MaxHeatPct) {
		trip(BreakerHeat, heatPct)
		return
	}
	if m.limits.MaxDrawdownPct.IsPositive() {
		if dd := s.DrawdownPct(); dd.GreaterThanOrEqual(m.limits.MaxDrawdownPct) {
			trip(BreakerDrawdown, dd)
		}
	}
}

func recordDecision(d types.Decision) {
	result, reason := "admitted", ""
	if !d.Admitted {
		result, reason = "rejected", string(d.Reason)
	}
	metrics.Admissions.WithLabelValues(result, reason).Inc()
}

func recordState(s State) {
	heat, _ := s.Heat().Float64()
	equity, _ := s.AccountEquity.Float64()
	metrics.PortfolioHeat.Set(heat)
	metrics.AccountEquity.Set(equity)
	metrics.CircuitBreaker.Set(metrics.Bool(s.BreakerActive))
}
