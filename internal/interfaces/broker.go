package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"trading-gate/internal/catalog"
)

// CatalogSource delivers the full instrument master for the day.
type CatalogSource interface {
	Name() string
	FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error)
}

// SpotSource quotes the underlying's last traded price for option strike
// selection.
type SpotSource interface {
	Spot(ctx context.Context, underlying string) (decimal.Decimal, error)
}

// BatchSpotSource quotes several underlyings in one request.
type BatchSpotSource interface {
	SpotSource
	Spots(ctx context.Context, underlyings []string) (map[string]decimal.Decimal, error)
}
