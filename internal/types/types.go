package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectReason names the limit that blocked an admission. Empty when admitted.
type RejectReason string

const (
	RejectCircuitBreaker    RejectReason = "CIRCUIT_BREAKER"
	RejectNonPositiveEquity RejectReason = "NON_POSITIVE_EQUITY"
	RejectPerTradeCap       RejectReason = "PER_TRADE_CAP"
	RejectHeatLimit         RejectReason = "HEAT_LIMIT"
	RejectMaxPositions      RejectReason = "MAX_POSITIONS"
	RejectDuplicatePosition RejectReason = "DUPLICATE_POSITION"
)

// Decision is the outcome of an admission check. A rejection is a normal
// result, not an error.
type Decision struct {
	Admitted      bool            `json:"admitted"`
	Reason        RejectReason    `json:"reason,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	ProposedRisk  decimal.Decimal `json:"proposed_risk"`
	HeatBefore    decimal.Decimal `json:"heat_before"`
	HeatAfter     decimal.Decimal `json:"heat_after"`
	OpenPositions int             `json:"open_positions"`
	PositionID    string          `json:"position_id,omitempty"`
}

// RiskSnapshot is a read-only view of the account's risk state.
type RiskSnapshot struct {
	TradingDay       time.Time       `json:"trading_day"`
	AccountEquity    decimal.Decimal `json:"account_equity"`
	StartingEquity   decimal.Decimal `json:"starting_equity"`
	PeakEquity       decimal.Decimal `json:"peak_equity"`
	OpenRisk         decimal.Decimal `json:"open_risk"`
	Heat             decimal.Decimal `json:"heat"`
	DailyPnL         decimal.Decimal `json:"daily_pnl"`
	DailyPnLPct      decimal.Decimal `json:"daily_pnl_pct"`
	DrawdownPct      decimal.Decimal `json:"drawdown_pct"`
	CircuitBreaker   bool            `json:"circuit_breaker_active"`
	BreakerReason    string          `json:"breaker_reason,omitempty"`
	BreakerMetric    decimal.Decimal `json:"breaker_metric"`
	BreakerTrippedAt time.Time       `json:"breaker_tripped_at,omitempty"`
	Positions        []Position      `json:"positions"`
}
