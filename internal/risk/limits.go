package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trading-gate/internal/store"
)

// Limits are expressed in percent of account equity.
type Limits struct {
	PerTradeRiskPct   decimal.Decimal
	MaxHeatPct        decimal.Decimal
	DailyLossLimitPct decimal.Decimal
	// MaxDrawdownPct trips the breaker on a fall from the intraday equity
	// peak. Zero disables it.
	MaxDrawdownPct   decimal.Decimal
	MaxOpenPositions int
}

func DefaultLimits() Limits {
	return Limits{
		PerTradeRiskPct:   decimal.RequireFromString("2.5"),
		MaxHeatPct:        decimal.NewFromInt(2),
		DailyLossLimitPct: decimal.NewFromInt(3),
		MaxOpenPositions:  5,
	}
}

func LimitsFromConfig(cfg *store.Config) Limits {
	return Limits{
		PerTradeRiskPct:   decimal.NewFromFloat(cfg.Risk.PerTradeRiskPct),
		MaxHeatPct:        decimal.NewFromFloat(cfg.Risk.MaxHeatPct),
		DailyLossLimitPct: decimal.NewFromFloat(cfg.Risk.DailyLossLimitPct),
		MaxDrawdownPct:    decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
		MaxOpenPositions:  cfg.Risk.MaxOpenPositions,
	}
}

func (l Limits) Validate() error {
	if !l.PerTradeRiskPct.IsPositive() {
		return fmt.Errorf("per-trade risk pct must be positive, got %s", l.PerTradeRiskPct)
	}
	if !l.MaxHeatPct.IsPositive() {
		return fmt.Errorf("max heat pct must be positive, got %s", l.MaxHeatPct)
	}
	if !l.DailyLossLimitPct.IsPositive() {
		return fmt.Errorf("daily loss limit pct must be positive, got %s", l.DailyLossLimitPct)
	}
	if l.MaxDrawdownPct.IsNegative() {
		return fmt.Errorf("max drawdown pct cannot be negative, got %s", l.MaxDrawdownPct)
	}
	if l.MaxOpenPositions < 1 {
		return fmt.Errorf("max open positions must be at least 1, got %d", l.MaxOpenPositions)
	}
	return nil
}
