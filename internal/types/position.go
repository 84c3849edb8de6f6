package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is an open exposure tracked by the risk manager from confirmed
// entry until confirmed exit or the day-boundary reset.
type Position struct {
	ID            string          `json:"id"`
	Strategy      string          `json:"strategy,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      int             `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// Risk is the amount lost if the stop is hit: |entry - stop| * quantity.
func (p Position) Risk() decimal.Decimal {
	return p.EntryPrice.Sub(p.StopLossPrice).Abs().Mul(decimal.NewFromInt(int64(p.Quantity)))
}
