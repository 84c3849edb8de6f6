package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/types"
)

var hundred = decimal.NewFromInt(100)

// State is the account's risk state as persisted by a Ledger. It is reset,
// not recreated, at each trading-day boundary.
type State struct {
	TradingDay       time.Time
	AccountEquity    decimal.Decimal
	StartingEquity   decimal.Decimal
	PeakEquity       decimal.Decimal
	BreakerActive    bool
	BreakerReason    string
	BreakerMetric    decimal.Decimal
	BreakerTrippedAt time.Time
	Positions        []types.Position
}

// Ledger serialises access to the shared risk state. Update runs fn inside an
// exclusive transaction and persists the state only if fn returns nil; a
// check-then-register sequence inside one Update is atomic across every
// process sharing the ledger.
type Ledger interface {
	View(ctx context.Context, fn func(State) error) error
	Update(ctx context.Context, fn func(*State) error) error
	Close() error
}

var (
	ErrUnknownPosition   = errors.New("unknown position")
	ErrDuplicatePosition = errors.New("position already registered")
	ErrInvalidPosition   = errors.New("invalid position")
)

// OpenRisk sums position risk over every open position.
func (s State) OpenRisk() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Positions {
		total = total.Add(p.Risk())
	}
	return total
}

// Heat is OpenRisk as a fraction of equity, recomputed from the full position
// set. It is zero when equity is not positive.
func (s State) Heat() decimal.Decimal {
	return ratio(s.OpenRisk(), s.AccountEquity)
}

func (s State) DailyPnL() decimal.Decimal {
	return s.AccountEquity.Sub(s.StartingEquity)
}

// DailyPnLPct is the day's P&L in percent of starting equity.
func (s State) DailyPnLPct() decimal.Decimal {
	return ratio(s.DailyPnL(), s.StartingEquity).Mul(hundred)
}

// DrawdownPct is the fall from the intraday equity peak in percent.
func (s State) DrawdownPct() decimal.Decimal {
	if s.AccountEquity.GreaterThanOrEqual(s.PeakEquity) {
		return decimal.Zero
	}
	return ratio(s.PeakEquity.Sub(s.AccountEquity), s.PeakEquity).Mul(hundred)
}

func (s State) position(id string) int {
	for i, p := range s.Positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Clone copies the state so callers cannot alias the ledger's positions.
func (s State) Clone() State {
	out := s
	out.Positions = append([]types.Position(nil), s.Positions...)
	return out
}

// Snapshot renders the state for display.
func (s State) Snapshot() types.RiskSnapshot {
	positions := s.Positions
	if positions == nil {
		positions = []types.Position{}
	}
	return types.RiskSnapshot{
		TradingDay:       s.TradingDay,
		AccountEquity:    s.AccountEquity,
		StartingEquity:   s.StartingEquity,
		PeakEquity:       s.PeakEquity,
		OpenRisk:         s.OpenRisk(),
		Heat:             s.Heat(),
		DailyPnL:         s.DailyPnL(),
		DailyPnLPct:      s.DailyPnLPct(),
		DrawdownPct:      s.DrawdownPct(),
		CircuitBreaker:   s.BreakerActive,
		BreakerReason:    s.BreakerReason,
		BreakerMetric:    s.BreakerMetric,
		BreakerTrippedAt: s.BreakerTrippedAt,
		Positions:        append([]types.Position(nil), positions...),
	}
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den)
}
