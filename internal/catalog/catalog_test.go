package catalog

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func option(sym string, strike int64, right types.OptionRight, exp time.Time) types.InstrumentRecord {
	return types.InstrumentRecord{
		Underlying:     "NIFTY",
		Class:          types.ClassOption,
		Exchange:       types.ExchangeNFO,
		Expiry:         exp,
		Strike:         decimal.NewFromInt(strike),
		Right:          right,
		LotSize:        25,
		TradableSymbol: sym,
	}
}

func TestLoad_ExcludesInvalidRecords(t *testing.T) {
	exp := day(2024, time.November, 28)
	records := []types.InstrumentRecord{
		option("NIFTY24NOV24000CE", 24000, types.RightCall, exp),
		option("NIFTY24NOV24000CE", 24000, types.RightCall, exp),
		{Underlying: "NIFTY", Class: types.ClassFuture, Exchange: "NFO", LotSize: 25, TradableSymbol: "NIFTY24NOVFUT"},
		{Underlying: "INFY", Class: types.ClassEquity, Exchange: "NSE", LotSize: 1, TradableSymbol: "INFY"},
		{Underlying: "INFY", Class: types.ClassEquity, Exchange: "NSE", LotSize: 0, TradableSymbol: "INFY-BE"},
	}

	c, report := Load(records, WithSource("test"))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 3, report.Excluded)
	assert.Equal(t, 1, report.Reasons[errDuplicateSymbol.Error()])
	assert.Equal(t, 1, report.Reasons[types.ErrMissingExpiry.Error()])
	assert.Equal(t, 1, report.Reasons[types.ErrBadLotSize.Error()])
	assert.Equal(t, "test", c.Source())
	assert.False(t, c.Synthetic())
}

func TestBuild_UnparseableExpiryIsCounted(t *testing.T) {
	rows := []RawRecord{
		{Tradingsymbol: "NIFTY24NOVFUT", Name: "NIFTY", Expiry: "2024-11-28", LotSize: 25, InstrumentType: "FUT", Exchange: "NFO"},
		{Tradingsymbol: "NIFTY24DECFUT", Name: "NIFTY", Expiry: "end of december", LotSize: 25, InstrumentType: "FUT", Exchange: "NFO"},
		{Tradingsymbol: "NIFTY24NOV24000PE", Name: "NIFTY", Expiry: "28NOV2024", Strike: 24000, LotSize: 25, InstrumentType: "PE", Exchange: "NFO"},
		{Tradingsymbol: "WEIRD", Name: "WEIRD", LotSize: 1, InstrumentType: "BOND", Exchange: "NSE"},
	}

	c, report := Build(rows, AsSynthetic())

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 2, report.Excluded)
	assert.Equal(t, 1, report.Reasons[types.ErrUnparseableExpiry.Error()])
	assert.Equal(t, []string{"NIFTY24DECFUT"}, report.Samples[types.ErrUnparseableExpiry.Error()])
	assert.True(t, report.Synthetic)

	rec, ok := c.Lookup("NIFTY24NOV24000PE")
	require.True(t, ok)
	assert.Equal(t, types.RightPut, rec.Right)
	assert.Equal(t, day(2024, time.November, 28), rec.Expiry)
	assert.True(t, rec.Strike.Equal(decimal.NewFromInt(24000)))
}

func TestFind_FiltersAndSorts(t *testing.T) {
	nov := day(2024, time.November, 28)
	dec := day(2024, time.December, 26)
	c, _ := Load([]types.InstrumentRecord{
		option("NIFTY24DEC24100CE", 24100, types.RightCall, dec),
		option("NIFTY24NOV24100CE", 24100, types.RightCall, nov),
		option("NIFTY24NOV24000CE", 24000, types.RightCall, nov),
		option("NIFTY24NOV24000PE", 24000, types.RightPut, nov),
	})

	calls := Query{Underlying: "nifty", Class: types.ClassOption, Right: types.RightCall}
	assert.Equal(t, []time.Time{nov, dec}, c.Expiries(calls))

	calls.Expiry = nov
	strikes := c.Strikes(calls)
	require.Len(t, strikes, 2)
	assert.Equal(t, "24000", strikes[0].String())
	assert.Equal(t, "24100", strikes[1].String())

	calls.Strike = decimal.NewFromInt(24100)
	calls.HasStrike = true
	got := c.Find(calls)
	require.Len(t, got, 1)
	assert.Equal(t, "NIFTY24NOV24100CE", got[0].TradableSymbol)

	matched := c.FindMatching(Query{Underlying: "NIFTY", Class: types.ClassOption}, regexp.MustCompile(`PE$`))
	require.Len(t, matched, 1)
	assert.Equal(t, "NIFTY24NOV24000PE", matched[0].TradableSymbol)
}

func TestNilCatalogIsEmpty(t *testing.T) {
	var c *Catalog
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Find(Query{Underlying: "NIFTY", Class: types.ClassFuture}))
	assert.False(t, c.Contains("NIFTY24NOVFUT"))
}

func TestHolder_Swap(t *testing.T) {
	h := NewHolder(nil)
	assert.Nil(t, h.Current())

	first, _ := Load(nil, WithSource("first"))
	second, _ := Load(nil, WithSource("second"))

	assert.Nil(t, h.Swap(first))
	assert.Equal(t, "first", h.Current().Source())
	assert.Same(t, first, h.Swap(second))
	assert.Equal(t, "second", h.Current().Source())
}

func TestLoadReport_String(t *testing.T) {
	r := LoadReport{Source: "kite", Total: 3, Loaded: 2}
	r.exclude("X", types.ErrBadLotSize)
	assert.Equal(t, "source=kite synthetic=false total=3 loaded=2 excluded=1 [lot size must be positive: 1]", r.String())
}

func TestBuild_UnderlyingFromKiteNames(t *testing.T) {
	c, report := Build([]RawRecord{
		{Tradingsymbol: "INFY", Name: "INFOSYS", LotSize: 1, InstrumentType: "EQ", Exchange: "NSE"},
		{Tradingsymbol: "GOLDM24DECFUT", Name: "GOLDM", Expiry: "2024-12-05", LotSize: 10, InstrumentType: "FUT", Exchange: "MCX"},
		{Tradingsymbol: "NATGASMINI24NOVFUT", Name: "NATGASMINI", Expiry: "2024-11-25", LotSize: 250, InstrumentType: "FUT", Exchange: "MCX"},
		{Tradingsymbol: "NIFTY24NOVFUT", Name: "NIFTY", Expiry: "2024-11-28", LotSize: 25, InstrumentType: "FUT", Exchange: "NFO"},
	})
	require.Equal(t, 0, report.Excluded, report.String())

	assert.Equal(t, []string{"INFY"}, c.Underlyings(types.ClassEquity))
	assert.Equal(t, []string{"GOLD", "NATURALGAS", "NIFTY"}, c.Underlyings(types.ClassFuture))
}
