package zerodha

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"trading-gate/internal/interfaces"
	"trading-gate/internal/store"
)

// ParamsFromEnv reads Kite credentials from the environment.
func ParamsFromEnv(cfg *store.Config) Params {
	return Params{
		APIKey:          os.Getenv("KITE_API_KEY"),
		AccessToken:     os.Getenv("KITE_ACCESS_TOKEN"),
		Exchanges:       cfg.Catalog.Exchanges,
		QuotesPerSecond: cfg.Spot.QuotesPerSecond,
		QuoteKeys:       cfg.Spot.QuoteKeys,
	}
}

// NewCatalogSource builds the configured instrument feed. Kite downloads are
// cached per day under catalog.cache_dir.
func NewCatalogSource(cfg *store.Config, p Params) (interfaces.CatalogSource, error) {
	switch cfg.Catalog.Source {
	case store.SourceKite:
		z, err := NewZerodha(p)
		if err != nil {
			return nil, err
		}
		return NewCachedSource(z, cfg.Catalog.CacheDir), nil
	case store.SourceCSV:
		return CSVFile{Path: cfg.Catalog.CSVPath}, nil
	case store.SourceSynthetic:
		return NewSyntheticFromConfig(cfg), nil
	}
	return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
}

// NewSpotSource builds the configured spot quote source.
func NewSpotSource(cfg *store.Config, p Params) (interfaces.SpotSource, error) {
	switch cfg.Spot.Source {
	case store.SourceKite:
		z, err := NewZerodha(p)
		if err != nil {
			return nil, err
		}
		return z, nil
	case store.SourceStatic:
		return StaticSpotFromConfig(cfg), nil
	}
	return nil, fmt.Errorf("unknown spot source %q", cfg.Spot.Source)
}

func NewSyntheticFromConfig(cfg *store.Config) *Synthetic {
	sp := SyntheticParams{
		WeeklyExpiries:  cfg.Synthetic.WeeklyExpiries,
		MonthlyExpiries: cfg.Synthetic.MonthlyExpiries,
		StrikesEachSide: cfg.Synthetic.StrikesEachSide,
	}
	for _, u := range cfg.Synthetic.Underlyings {
		sp.Underlyings = append(sp.Underlyings, SyntheticUnderlying{
			Name:       u.Name,
			Exchange:   u.Exchange,
			Spot:       decimal.NewFromFloat(u.Spot),
			StrikeStep: decimal.NewFromFloat(u.StrikeStep),
			LotSize:    u.LotSize,
			Weekly:     u.Weekly,
			Mini:       u.Mini,
			NoOptions:  u.NoOptions,
		})
	}
	return NewSynthetic(sp)
}

// StaticSpotFromConfig serves spot.static prices, falling back to the
// synthetic universe's spot for underlyings without one.
func StaticSpotFromConfig(cfg *store.Config) StaticSpot {
	prices := make(map[string]decimal.Decimal)
	for _, u := range cfg.Synthetic.Underlyings {
		if u.Spot > 0 {
			prices[upper(u.Name)] = decimal.NewFromFloat(u.Spot)
		}
	}
	for name, v := range cfg.Spot.Static {
		prices[upper(name)] = decimal.NewFromFloat(v)
	}
	return StaticSpot{Prices: prices}
}
