package validation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/broker/zerodha"
	"trading-gate/internal/catalog"
	"trading-gate/internal/expiry"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/resolver"
	"trading-gate/internal/store"
	"trading-gate/internal/tradelog"
	"trading-gate/internal/types"
)

type fakeSource struct {
	name  string
	rows  []catalog.RawRecord
	err   error
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchInstruments(ctx context.Context) ([]catalog.RawRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

type failingSpot struct{ err error }

func (f failingSpot) Spot(ctx context.Context, underlying string) (decimal.Decimal, error) {
	return decimal.Zero, f.err
}

// 09:30 IST on Friday 2024-11-08.
var fixedNow = time.Date(2024, 11, 8, 4, 0, 0, 0, time.UTC)

func masterRows() []catalog.RawRecord {
	rows := []catalog.RawRecord{
		{InstrumentToken: 1, Tradingsymbol: "RELIANCE", Name: "RELIANCE INDUSTRIES", InstrumentType: "EQ", Segment: "NSE", Exchange: "NSE", LotSize: 1, TickSize: 0.05},
		{InstrumentToken: 2, Tradingsymbol: "NIFTY24NOVFUT", Name: "NIFTY", InstrumentType: "FUT", Segment: "NFO-FUT", Exchange: "NFO", Expiry: "2024-11-28", LotSize: 25, TickSize: 0.05},
		{InstrumentToken: 3, Tradingsymbol: "SILVER24DECFUT", Name: "SILVER", InstrumentType: "FUT", Segment: "MCX-FUT", Exchange: "MCX", Expiry: "2024-12-05", LotSize: 30, TickSize: 1},
		{InstrumentToken: 4, Tradingsymbol: "SILVERM24NOVFUT", Name: "SILVERM", InstrumentType: "FUT", Segment: "MCX-FUT", Exchange: "MCX", Expiry: "2024-11-29", LotSize: 5, TickSize: 1},
	}
	token := uint32(10)
	for _, exp := range []string{"2024-11-14", "2024-11-28"} {
		for _, strike := range []float64{23900, 24000, 24100} {
			for _, right := range []string{"CE", "PE"} {
				rows = append(rows, catalog.RawRecord{
					InstrumentToken: token,
					Tradingsymbol:   "NIFTY" + exp + decimal.NewFromFloat(strike).String() + right,
					Name:            "NIFTY",
					InstrumentType:  right,
					Segment:         "NFO-OPT",
					Exchange:        "NFO",
					Expiry:          exp,
					Strike:          strike,
					LotSize:         25,
					TickSize:        0.05,
				})
				token++
			}
		}
	}
	return rows
}

func strategies() []store.Strategy {
	return []store.Strategy{
		{Name: "equity_momentum", Instrument: types.InstrumentSpec{Underlying: "RELIANCE", Class: types.ClassEquity}},
		{Name: "index_futures", Instrument: types.InstrumentSpec{Underlying: "NIFTY", Class: types.ClassFuture}},
		{Name: "silver_trend", Instrument: types.InstrumentSpec{Underlying: "SILVER", Class: types.ClassFuture, Exchange: "MCX"}},
		{Name: "nifty_atm_calls", Instrument: types.InstrumentSpec{Underlying: "NIFTY", Class: types.ClassOption, Right: types.RightCall}},
		{Name: "banknifty_futures", Instrument: types.InstrumentSpec{Underlying: "BANKNIFTY", Class: types.ClassFuture}},
	}
}

func newTestOrchestrator(t *testing.T, opts Options, src *fakeSource, fallback *fakeSource, spots interfaces.SpotSource) *Orchestrator {
	t.Helper()
	tradelog.SetDir(t.TempDir())
	t.Cleanup(func() { tradelog.SetDir("") })

	if opts.Mode == "" {
		opts.Mode = store.ModeDryRun
	}
	if opts.ReportDir == "" {
		opts.ReportDir = t.TempDir()
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}

	var fb interfaces.CatalogSource
	if fallback != nil {
		fb = fallback
	}
	o, err := New(opts, src, fb, spots, resolver.New(resolver.Options{}), nil)
	require.NoError(t, err)
	o.now = func() time.Time { return fixedNow }
	o.retry = time.Millisecond
	return o
}

func niftySpot() zerodha.StaticSpot {
	return zerodha.StaticSpot{Prices: map[string]decimal.Decimal{"NIFTY": decimal.NewFromInt(24040)}}
}

func TestRun_AllResolved(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{Strategies: strategies()[:4]}, src, nil, niftySpot())

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Halt)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Resolved, 4)

	got := map[string]types.ResolvedSymbol{}
	for _, r := range report.Resolved {
		got[r.Strategy] = r.Symbol
	}
	assert.Equal(t, "RELIANCE", got["equity_momentum"].TradableSymbol)
	assert.Equal(t, "NIFTY24NOVFUT", got["index_futures"].TradableSymbol)
	assert.Equal(t, 25, got["index_futures"].LotSize)
	assert.Equal(t, "SILVERM24NOVFUT", got["silver_trend"].TradableSymbol, "MCX mini contract preferred")
	assert.Equal(t, "NIFTY2024-11-1424000CE", got["nifty_atm_calls"].TradableSymbol)
	assert.True(t, got["nifty_atm_calls"].Strike.Equal(decimal.NewFromInt(24000)))

	assert.Equal(t, "kite", report.Catalog.Source)
	assert.False(t, report.Catalog.Synthetic)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, expiry.Today(fixedNow), report.TradingDay)
}

func TestRun_OneFailureHaltsTheDay(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{Strategies: strategies()}, src, nil, niftySpot())

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Halt)
	assert.Contains(t, report.HaltReason, "1 of 5")
	assert.Len(t, report.Resolved, 4, "every other strategy is still attempted")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "banknifty_futures", report.Failures[0].Strategy)
	assert.Equal(t, resolver.KindNoContractFound, report.Failures[0].Kind)
}

func TestRun_SpotErrorIsSpotUnavailable(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	quoteErr := errors.New("quote endpoint down")
	o := newTestOrchestrator(t, Options{Strategies: strategies()[3:4]}, src, nil, failingSpot{err: quoteErr})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Halt)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, resolver.KindSpotUnavailable, report.Failures[0].Kind)
	assert.Contains(t, report.Failures[0].Detail, "quote endpoint down")
}

func TestRun_MissingSpotIsSpotUnavailable(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{Strategies: strategies()[3:4]}, src, nil, zerodha.StaticSpot{})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, resolver.KindSpotUnavailable, report.Failures[0].Kind)
}

func TestRun_CatalogUnavailableInLive(t *testing.T) {
	src := &fakeSource{name: "kite", err: errors.New("connection reset")}
	o := newTestOrchestrator(t, Options{Mode: store.ModeLive, RetryAttempts: 3, Strategies: strategies()}, src, nil, niftySpot())

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)

	var cu *CatalogUnavailableError
	require.ErrorAs(t, err, &cu)
	assert.Equal(t, "kite", cu.Source)
	assert.Equal(t, 3, cu.Attempts)
	assert.Equal(t, int32(3), src.calls.Load())

	assert.True(t, report.Halt)
	assert.Empty(t, report.Resolved)
	assert.Nil(t, o.holder.Current(), "nothing is published on failure")
}

func TestRun_EmptyFeedIsRetried(t *testing.T) {
	src := &fakeSource{name: "kite"}
	o := newTestOrchestrator(t, Options{RetryAttempts: 2, Strategies: strategies()[:1]}, src, nil, nil)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRun_FallbackOnlyWhenAllowed(t *testing.T) {
	t.Run("dry run with fallback", func(t *testing.T) {
		src := &fakeSource{name: "kite", err: errors.New("timeout")}
		fb := &fakeSource{name: "synthetic", rows: masterRows()}
		o := newTestOrchestrator(t, Options{AllowSyntheticFallback: true, Strategies: strategies()[:2]}, src, fb, niftySpot())

		report, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.False(t, report.Halt)
		assert.True(t, report.Catalog.Synthetic)
		assert.Equal(t, "synthetic", report.Catalog.Source)
		require.NotNil(t, o.holder.Current())
		assert.True(t, o.holder.Current().Synthetic())
		assert.Len(t, report.Resolved, 2)
	})

	t.Run("dry run without permission", func(t *testing.T) {
		src := &fakeSource{name: "kite", err: errors.New("timeout")}
		fb := &fakeSource{name: "synthetic", rows: masterRows()}
		o := newTestOrchestrator(t, Options{Strategies: strategies()[:2]}, src, fb, niftySpot())

		report, err := o.Run(context.Background())
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
		assert.True(t, report.Halt)
		assert.Zero(t, fb.calls.Load())
	})

	t.Run("live refuses fallback", func(t *testing.T) {
		src := &fakeSource{name: "kite", rows: masterRows()}
		fb := &fakeSource{name: "synthetic", rows: masterRows()}
		_, err := New(Options{Mode: store.ModeLive, AllowSyntheticFallback: true}, src, fb, nil, resolver.New(resolver.Options{}), nil)
		assert.Error(t, err)
	})
}

func TestRun_WritesReport(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	dir := t.TempDir()
	o := newTestOrchestrator(t, Options{ReportDir: dir, Strategies: strategies()}, src, nil, niftySpot())

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "validation-2024-11-08.json"))
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, decoded.Halt)
	assert.Len(t, decoded.Failures, 1)
	assert.Len(t, decoded.Resolved, 4)
	assert.Equal(t, store.ModeDryRun, decoded.Mode)
}

func TestRun_RepeatedRunIsDeterministic(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{Strategies: strategies()[:4]}, src, nil, niftySpot())

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Resolved, second.Resolved)
}

func TestRun_PurgeFailureHaltsTheDay(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(stateFile, []byte("not a directory"), 0o644))

	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{StateDir: stateFile, Strategies: strategies()[:3]}, src, nil, niftySpot())

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPurgeFailed)

	var pe *PurgeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, stateFile, pe.Dir)

	assert.True(t, report.Halt)
	assert.Contains(t, report.HaltReason, "stale state purge failed")
	assert.Empty(t, report.Resolved)
	assert.Zero(t, src.calls.Load(), "catalog is not fetched after a failed purge")
	assert.Nil(t, o.holder.Current())
}

func TestRun_ReportCarriesCatalogLoadTime(t *testing.T) {
	src := &fakeSource{name: "kite", rows: masterRows()}
	o := newTestOrchestrator(t, Options{Strategies: strategies()[:1]}, src, nil, nil)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, o.holder.Current())
	assert.Equal(t, o.holder.Current().LoadedAt().UTC(), report.CatalogLoadedAt)
	assert.False(t, report.CatalogLoadedAt.IsZero())
}

func TestPurgeState_KeepsToday(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "momentum.json")
	fresh := filepath.Join(dir, "breakout.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("{}"), 0o644))

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed, err := PurgeState(dir, expiry.Today(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestPurgeState_MissingDir(t *testing.T) {
	removed, err := PurgeState(filepath.Join(t.TempDir(), "absent"), expiry.Today(time.Now()))
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestNew_RequiresSourceAndResolver(t *testing.T) {
	_, err := New(Options{}, nil, nil, nil, resolver.New(resolver.Options{}), nil)
	assert.Error(t, err)
	_, err = New(Options{}, &fakeSource{}, nil, nil, nil, nil)
	assert.Error(t, err)
}
