package zerodha

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"

	"trading-gate/internal/catalog"
	"trading-gate/internal/types"
)

type fakeKite struct {
	instruments map[string]kiteconnect.Instruments
	ltpJSON     string
	err         error
	ltpKeys     []string
}

func (f *fakeKite) GetInstruments() (kiteconnect.Instruments, error) {
	var all kiteconnect.Instruments
	for _, ins := range f.instruments {
		all = append(all, ins...)
	}
	return all, f.err
}

func (f *fakeKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	return f.instruments[exchange], f.err
}

func (f *fakeKite) GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error) {
	f.ltpKeys = append(f.ltpKeys, instruments...)
	if f.err != nil {
		return nil, f.err
	}
	var q kiteconnect.QuoteLTP
	if err := json.Unmarshal([]byte(f.ltpJSON), &q); err != nil {
		return nil, err
	}
	return q, nil
}

func TestNewZerodha_RequiresCredentials(t *testing.T) {
	_, err := NewZerodha(Params{APIKey: "key"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestFetchInstruments_ConvertsKiteRows(t *testing.T) {
	kite := &fakeKite{instruments: map[string]kiteconnect.Instruments{
		"NFO": {
			{
				InstrumentToken: 12345,
				Tradingsymbol:   "NIFTY24NOV24000CE",
				Name:            "NIFTY",
				Expiry:          models.Time{Time: time.Date(2024, time.November, 28, 0, 0, 0, 0, time.UTC)},
				StrikePrice:     24000,
				TickSize:        0.05,
				LotSize:         25,
				InstrumentType:  "CE",
				Segment:         "NFO-OPT",
				Exchange:        "NFO",
			},
		},
		"NSE": {
			{InstrumentToken: 408065, Tradingsymbol: "INFY", Name: "INFOSYS", LotSize: 1, InstrumentType: "EQ", Segment: "NSE", Exchange: "NSE"},
		},
	}}
	z := newWithClient(Params{Exchanges: []string{"nfo"}}, kite)

	rows, err := z.FetchInstruments(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-11-28", rows[0].Expiry)
	assert.Equal(t, uint32(12345), rows[0].InstrumentToken)
	assert.Equal(t, 25, rows[0].LotSize)

	c, report := catalog.Build(rows)
	assert.Equal(t, 0, report.Excluded)
	rec, ok := c.Lookup("NIFTY24NOV24000CE")
	require.True(t, ok)
	assert.Equal(t, types.ClassOption, rec.Class)
	assert.Equal(t, types.RightCall, rec.Right)
}

func TestFetchInstruments_PropagatesErrors(t *testing.T) {
	z := newWithClient(Params{}, &fakeKite{err: errors.New("503")})
	_, err := z.FetchInstruments(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestSpot_UsesIndexQuoteKey(t *testing.T) {
	kite := &fakeKite{ltpJSON: `{"NSE:NIFTY 50":{"instrument_token":256265,"last_price":24050.5}}`}
	z := newWithClient(Params{QuotesPerSecond: 100}, kite)

	spot, err := z.Spot(context.Background(), "nifty")
	require.NoError(t, err)
	assert.Equal(t, "24050.5", spot.String())
	assert.Equal(t, []string{"NSE:NIFTY 50"}, kite.ltpKeys)
}

func TestSpot_MissingQuote(t *testing.T) {
	z := newWithClient(Params{QuotesPerSecond: 100}, &fakeKite{ltpJSON: `{}`})
	_, err := z.Spot(context.Background(), "RELIANCE")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestSpots_MapsKeysBack(t *testing.T) {
	kite := &fakeKite{ltpJSON: `{
		"NSE:NIFTY BANK":{"instrument_token":260105,"last_price":51000},
		"NSE:RELIANCE":{"instrument_token":738561,"last_price":1290.4}
	}`}
	z := newWithClient(Params{QuotesPerSecond: 100, QuoteKeys: map[string]string{"crudeoil": "MCX:CRUDEOIL24NOVFUT"}}, kite)

	spots, err := z.Spots(context.Background(), []string{"BANKNIFTY", "RELIANCE", "CRUDEOIL"})
	require.NoError(t, err)
	assert.Len(t, spots, 2)
	assert.True(t, spots["BANKNIFTY"].Equal(decimal.NewFromInt(51000)))
	assert.True(t, spots["RELIANCE"].Equal(decimal.RequireFromString("1290.4")))
	assert.Contains(t, kite.ltpKeys, "MCX:CRUDEOIL24NOVFUT")
}

func TestSpot_HonoursContext(t *testing.T) {
	z := newWithClient(Params{QuotesPerSecond: 100}, &fakeKite{ltpJSON: `{}`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := z.Spot(ctx, "NIFTY")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuoteKeyMapper(t *testing.T) {
	m := newQuoteKeyMapper(map[string]string{"gold": "MCX:GOLD24DECFUT"})

	assert.Equal(t, "BSE:SENSEX", m.quoteKey("sensex"))
	assert.Equal(t, "MCX:GOLD24DECFUT", m.quoteKey("GOLD"))
	assert.Equal(t, "NSE:TCS", m.quoteKey("TCS"))

	u, ok := m.underlying("NSE:TCS")
	assert.True(t, ok)
	assert.Equal(t, "TCS", u)
}
