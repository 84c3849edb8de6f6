package main

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/expiry"
	"trading-gate/internal/risk"
	"trading-gate/internal/risk/ledger"
	"trading-gate/internal/store"
	"trading-gate/internal/types"
)

type fakeEOD struct {
	due   bool
	calls int
}

func (f *fakeEOD) SummarizeDay(t time.Time) (string, error) { return "", nil }

func (f *fakeEOD) SummarizeToday() (string, error) {
	f.calls++
	return "reports/eod/today.csv", nil
}

func (f *fakeEOD) ShouldRunNow() (bool, string) { return f.due, "" }

func newLoop(t *testing.T) (*dayLoop, *risk.Manager, *fakeEOD) {
	t.Helper()
	mgr, err := risk.NewManager(ledger.NewMemory(decimal.NewFromInt(100_000)), risk.DefaultLimits())
	require.NoError(t, err)
	e := &fakeEOD{}
	return &dayLoop{risk: mgr, eod: e}, mgr, e
}

func TestDayLoop_RollsDayAndClearsBreaker(t *testing.T) {
	ctx := context.Background()
	loop, mgr, _ := newLoop(t)

	day1 := time.Date(2024, 11, 8, 4, 0, 0, 0, time.UTC)
	loop.tick(ctx, day1)

	snap, err := mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, expiry.Today(day1), snap.TradingDay)

	d, err := mgr.Admit(ctx, types.Position{
		Symbol:        "NIFTY24NOVFUT",
		Quantity:      10,
		EntryPrice:    decimal.NewFromInt(100),
		StopLossPrice: decimal.NewFromInt(99),
	})
	require.NoError(t, err)
	require.True(t, d.Admitted)
	require.NoError(t, mgr.RegisterExit(ctx, d.PositionID, decimal.NewFromInt(-4000)))

	loop.tick(ctx, day1.Add(time.Minute))
	snap, err = mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.CircuitBreaker, "4% loss breaches the 3% daily limit")
	assert.Equal(t, risk.BreakerDailyLoss, snap.BreakerReason)

	day2 := day1.Add(24 * time.Hour)
	loop.tick(ctx, day2)
	snap, err = mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.CircuitBreaker)
	assert.Equal(t, expiry.Today(day2), snap.TradingDay)
	assert.True(t, snap.StartingEquity.Equal(decimal.NewFromInt(96_000)), "previous close carried forward")
}

func TestDayLoop_SameDayKeepsStartingEquity(t *testing.T) {
	ctx := context.Background()
	loop, mgr, _ := newLoop(t)
	now := time.Date(2024, 11, 8, 4, 0, 0, 0, time.UTC)
	loop.tick(ctx, now)

	p := types.Position{ID: "p1", Symbol: "RELIANCE", Quantity: 1, EntryPrice: decimal.NewFromInt(2500), StopLossPrice: decimal.NewFromInt(2450)}
	require.NoError(t, mgr.RegisterEntry(ctx, p))
	require.NoError(t, mgr.RegisterExit(ctx, "p1", decimal.NewFromInt(1000)))

	loop.tick(ctx, now.Add(2*time.Hour))
	snap, err := mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.StartingEquity.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, snap.DailyPnL.Equal(decimal.NewFromInt(1000)))
}

func TestDayLoop_RunsEODWhenDue(t *testing.T) {
	ctx := context.Background()
	loop, _, e := newLoop(t)
	now := time.Date(2024, 11, 8, 10, 30, 0, 0, time.UTC)

	loop.tick(ctx, now)
	assert.Zero(t, e.calls)

	e.due = true
	loop.tick(ctx, now.Add(time.Minute))
	assert.Equal(t, 1, e.calls)
}

func TestServiceURL(t *testing.T) {
	cfg := &store.Config{}
	cfg.Service.Addr = ":8088"
	assert.Equal(t, "http://localhost:8088", serviceURL(cfg, ""))

	cfg.Service.URL = "http://risk.internal:9000"
	assert.Equal(t, "http://risk.internal:9000", serviceURL(cfg, ""))
	assert.Equal(t, "http://other:1", serviceURL(cfg, "http://other:1"))
}
