package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"trading-gate/internal/expiry"
	"trading-gate/internal/types"
)

// RawRecord is an instrument-master row as delivered by a feed, before date
// normalisation and class mapping. Field names follow the Kite master dump.
type RawRecord struct {
	InstrumentToken uint32  `csv:"instrument_token"`
	ExchangeToken   uint32  `csv:"exchange_token"`
	Tradingsymbol   string  `csv:"tradingsymbol"`
	Name            string  `csv:"name"`
	LastPrice       float64 `csv:"last_price"`
	Expiry          string  `csv:"expiry"`
	Strike          float64 `csv:"strike"`
	TickSize        float64 `csv:"tick_size"`
	LotSize         int     `csv:"lot_size"`
	InstrumentType  string  `csv:"instrument_type"`
	Segment         string  `csv:"segment"`
	Exchange        string  `csv:"exchange"`
}

// Build converts raw rows into records and loads them. Rows with an unknown
// instrument type or an unparseable expiry are excluded and counted rather
// than failing the whole load.
func Build(rows []RawRecord, opts ...Option) (*Catalog, LoadReport) {
	var rowReport LoadReport
	records := make([]types.InstrumentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			rowReport.Total++
			rowReport.exclude(row.Tradingsymbol, err)
			continue
		}
		records = append(records, rec)
	}

	c, report := Load(records, opts...)
	report.merge(rowReport)
	return c, report
}

func (row RawRecord) toRecord() (types.InstrumentRecord, error) {
	class, right, err := types.ParseInstrumentClass(row.InstrumentType)
	if err != nil {
		return types.InstrumentRecord{}, types.ErrBadClass
	}

	rec := types.InstrumentRecord{
		Underlying:      underlyingOf(row, class),
		Class:           class,
		Exchange:        row.Exchange,
		Right:           right,
		LotSize:         row.LotSize,
		TradableSymbol:  row.Tradingsymbol,
		InstrumentToken: row.InstrumentToken,
		TickSize:        decimal.NewFromFloat(row.TickSize),
		Segment:         row.Segment,
	}
	if class == types.ClassOption {
		rec.Strike = decimal.NewFromFloat(row.Strike)
	}

	if strings.TrimSpace(row.Expiry) != "" {
		d, err := expiry.NormalizeDate(row.Expiry)
		if err != nil {
			return types.InstrumentRecord{}, types.ErrUnparseableExpiry
		}
		rec.Expiry = d
	}
	return rec, nil
}

// mcxMiniParents maps the Kite "name" of MCX mini contracts onto the parent
// commodity, so minis and regular contracts share one underlying.
var mcxMiniParents = map[string]string{
	"GOLDM":      "GOLD",
	"SILVERM":    "SILVER",
	"CRUDEOILM":  "CRUDEOIL",
	"NATGASMINI": "NATURALGAS",
	"ALUMINI":    "ALUMINIUM",
	"ZINCMINI":   "ZINC",
	"LEADMINI":   "LEAD",
}

// underlyingOf picks the underlying name. Equities are keyed by trading
// symbol since Kite puts the company name in "name" (INFY / INFOSYS).
// Derivatives use "name", with MCX minis folded onto their parent. Rows
// with a blank name fall back to the trading symbol.
func underlyingOf(row RawRecord, class types.InstrumentClass) string {
	if class == types.ClassEquity {
		return strings.ToUpper(strings.TrimSpace(row.Tradingsymbol))
	}
	name := strings.ToUpper(strings.Trim(strings.TrimSpace(row.Name), `"`))
	if name == "" {
		return row.Tradingsymbol
	}
	if strings.EqualFold(row.Exchange, types.ExchangeMCX) {
		if parent, ok := mcxMiniParents[name]; ok {
			return parent
		}
	}
	return name
}
