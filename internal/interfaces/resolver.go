package interfaces

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/catalog"
	"trading-gate/internal/types"
)

// Resolver maps an instrument spec onto exactly one catalog contract.
type Resolver interface {
	Resolve(spec types.InstrumentSpec, cat *catalog.Catalog, spot *decimal.Decimal, today time.Time) (types.ResolvedSymbol, error)
}
