package brokerobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-gate/internal/catalog"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/logger"
	"trading-gate/internal/metrics"
	"trading-gate/internal/trace"
)

// observableCatalogSource wraps a CatalogSource with observability (logging, tracing & metrics)
type observableCatalogSource struct {
	src interfaces.CatalogSource
}

// Compile-time interface check
var _ interfaces.CatalogSource = (*observableCatalogSource)(nil)

// WrapCatalog wraps a catalog source with observability middleware
func WrapCatalog(src interfaces.CatalogSource) interfaces.CatalogSource {
	return &observableCatalogSource{
		src: src,
	}
}

func (o *observableCatalogSource) Name() string { return o.src.Name() }

// FetchInstruments downloads the instrument master with observability
func (o *observableCatalogSource) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchInstruments")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Fetching instrument master", "source", o.src.Name())

	rows, err := o.src.FetchInstruments(ctx)
	if err != nil {
		metrics.CatalogRefreshes.WithLabelValues(o.src.Name(), "error").Inc()
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch instrument master", err,
			"source", o.src.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	metrics.CatalogRefreshes.WithLabelValues(o.src.Name(), "ok").Inc()
	logger.InfoSkip(ctx, 1, "Instrument master fetched",
		"source", o.src.Name(),
		"count", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

// observableSpotSource wraps a SpotSource with observability (logging & tracing)
type observableSpotSource struct {
	src interfaces.SpotSource
}

var _ interfaces.SpotSource = (*observableSpotSource)(nil)

// WrapSpot wraps a spot source with observability middleware. Batch
// capability of the wrapped source is preserved.
func WrapSpot(src interfaces.SpotSource) interfaces.SpotSource {
	base := &observableSpotSource{src: src}
	if batch, ok := src.(interfaces.BatchSpotSource); ok {
		return &observableBatchSpotSource{observableSpotSource: base, batch: batch}
	}
	return base
}

// Spot returns the underlying's last price with observability
func (o *observableSpotSource) Spot(ctx context.Context, underlying string) (decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Spot")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching spot", "underlying", underlying)

	price, err := o.src.Spot(ctx, underlying)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch spot", err, "underlying", underlying)
		return decimal.Zero, err
	}

	logger.DebugSkip(ctx, 1, "Spot fetched successfully", "underlying", underlying, "price", price.String())
	return price, nil
}

type observableBatchSpotSource struct {
	*observableSpotSource
	batch interfaces.BatchSpotSource
}

var _ interfaces.BatchSpotSource = (*observableBatchSpotSource)(nil)

// Spots quotes several underlyings with observability
func (o *observableBatchSpotSource) Spots(ctx context.Context, underlyings []string) (map[string]decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Spots")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching spots", "underlyings", underlyings, "count", len(underlyings))

	spots, err := o.batch.Spots(ctx, underlyings)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch spots", err, "underlyings", underlyings)
		return nil, err
	}

	if len(spots) < len(underlyings) {
		logger.WarnSkip(ctx, 1, "Some spots missing", "requested", len(underlyings), "quoted", len(spots))
	}
	return spots, nil
}
