package zerodha

import (
	"context"

	"trading-gate/internal/catalog"
	"trading-gate/internal/interfaces"
)

// CSVFile reads a Kite instrument dump saved to disk.
type CSVFile struct {
	Path string
}

var _ interfaces.CatalogSource = CSVFile{}

func (c CSVFile) Name() string { return "csv" }

func (c CSVFile) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadCSV(c.Path)
}
