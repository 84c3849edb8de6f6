package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/types"
)

// RiskAdmitter is implemented by the in-process risk manager and by the
// client of the centralised risk service.
type RiskAdmitter interface {
	CanAdmit(ctx context.Context, proposedRisk decimal.Decimal) (types.Decision, error)
	Admit(ctx context.Context, p types.Position) (types.Decision, error)
	RegisterEntry(ctx context.Context, p types.Position) error
	RegisterExit(ctx context.Context, positionID string, realizedPnL decimal.Decimal) error
	CheckDailyLoss(ctx context.Context) (bool, error)
	ResetDay(ctx context.Context, day time.Time, equity decimal.Decimal) error
	Snapshot(ctx context.Context) (types.RiskSnapshot, error)
}
