package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/risk"
	"trading-gate/internal/store"
	"trading-gate/internal/types"
)

var errAbort = errors.New("abort")

func samplePosition(id string) types.Position {
	return types.Position{
		ID:            id,
		Strategy:      "orb",
		Symbol:        "NIFTY24NOV24000CE",
		Side:          types.SideBuy,
		Quantity:      50,
		EntryPrice:    decimal.RequireFromString("120.5"),
		StopLossPrice: decimal.RequireFromString("100.25"),
		OpenedAt:      time.Date(2024, 11, 8, 4, 0, 0, 0, time.UTC),
	}
}

// exerciseLedger runs the behaviour every backend must share.
func exerciseLedger(t *testing.T, l risk.Ledger) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, l.View(ctx, func(s risk.State) error {
		assert.True(t, s.AccountEquity.Equal(decimal.NewFromInt(100000)), "seeded equity, got %s", s.AccountEquity)
		assert.Empty(t, s.Positions)
		return nil
	}))

	tripped := time.Date(2024, 11, 8, 6, 30, 0, 0, time.UTC)
	require.NoError(t, l.Update(ctx, func(s *risk.State) error {
		s.TradingDay = time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
		s.AccountEquity = decimal.RequireFromString("98500.75")
		s.BreakerActive = true
		s.BreakerReason = "DAILY_LOSS"
		s.BreakerMetric = decimal.RequireFromString("-1.4992")
		s.BreakerTrippedAt = tripped
		s.Positions = append(s.Positions, samplePosition("p1"), samplePosition("p2"))
		return nil
	}))

	require.NoError(t, l.View(ctx, func(s risk.State) error {
		assert.Equal(t, "2024-11-08", s.TradingDay.Format("2006-01-02"))
		assert.Equal(t, "98500.75", s.AccountEquity.String())
		assert.True(t, s.BreakerActive)
		assert.Equal(t, "DAILY_LOSS", s.BreakerReason)
		assert.Equal(t, "-1.4992", s.BreakerMetric.String())
		assert.True(t, s.BreakerTrippedAt.Equal(tripped))
		require.Len(t, s.Positions, 2)
		p := s.Positions[0]
		assert.Equal(t, "p1", p.ID)
		assert.Equal(t, types.SideBuy, p.Side)
		assert.Equal(t, 50, p.Quantity)
		assert.Equal(t, "120.5", p.EntryPrice.String())
		assert.Equal(t, "100.25", p.StopLossPrice.String())
		return nil
	}))

	// a failing update leaves state untouched
	err := l.Update(ctx, func(s *risk.State) error {
		s.Positions = nil
		s.AccountEquity = decimal.Zero
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	require.NoError(t, l.View(ctx, func(s risk.State) error {
		assert.Len(t, s.Positions, 2)
		assert.Equal(t, "98500.75", s.AccountEquity.String())
		return nil
	}))

	require.NoError(t, l.Update(ctx, func(s *risk.State) error {
		s.Positions = s.Positions[1:]
		s.BreakerActive = false
		s.BreakerTrippedAt = time.Time{}
		return nil
	}))
	require.NoError(t, l.View(ctx, func(s risk.State) error {
		require.Len(t, s.Positions, 1)
		assert.Equal(t, "p2", s.Positions[0].ID)
		assert.False(t, s.BreakerActive)
		assert.True(t, s.BreakerTrippedAt.IsZero())
		return nil
	}))
}

// exerciseConcurrentAdmit checks that concurrent admissions through one
// manager never push heat over the limit.
func exerciseConcurrentAdmit(t *testing.T, l risk.Ledger) {
	t.Helper()
	limits := risk.DefaultLimits()
	limits.MaxOpenPositions = 100
	m, err := risk.NewManager(l, limits)
	require.NoError(t, err)

	ctx := context.Background()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 500 risk each on 100000 equity: 0.5% heat
			d, err := m.Admit(ctx, types.Position{
				Symbol:        "NIFTY24NOVFUT",
				Quantity:      50,
				EntryPrice:    decimal.NewFromInt(110),
				StopLossPrice: decimal.NewFromInt(100),
			})
			if !assert.NoError(t, err) {
				return
			}
			if d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 2% max heat admits exactly four 0.5% trades
	assert.Equal(t, 4, admitted)
	heat, err := m.PortfolioHeat(ctx)
	require.NoError(t, err)
	assert.True(t, heat.Equal(decimal.RequireFromString("0.02")), "heat %s", heat)
}

func TestMemory(t *testing.T) {
	exerciseLedger(t, NewMemory(decimal.NewFromInt(100000)))
}

func TestMemory_ConcurrentAdmit(t *testing.T) {
	exerciseConcurrentAdmit(t, NewMemory(decimal.NewFromInt(100000)))
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory(decimal.NewFromInt(1))
	err := m.Update(ctx, func(*risk.State) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLite(t *testing.T) {
	l, err := NewSQLite(filepath.Join(t.TempDir(), "risk.db"), decimal.NewFromInt(100000))
	require.NoError(t, err)
	defer l.Close()
	exerciseLedger(t, l)
}

func TestSQLite_ConcurrentAdmit(t *testing.T) {
	l, err := NewSQLite(filepath.Join(t.TempDir(), "risk.db"), decimal.NewFromInt(100000))
	require.NoError(t, err)
	defer l.Close()
	exerciseConcurrentAdmit(t, l)
}

func TestSQLite_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.db")
	a, err := NewSQLite(path, decimal.NewFromInt(100000))
	require.NoError(t, err)
	defer a.Close()

	// the second handle must not reseed the existing account
	b, err := NewSQLite(path, decimal.NewFromInt(1))
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Update(ctx, func(s *risk.State) error {
		s.Positions = append(s.Positions, samplePosition("from-a"))
		return nil
	}))
	require.NoError(t, b.View(ctx, func(s risk.State) error {
		assert.Equal(t, "100000", s.AccountEquity.String())
		require.Len(t, s.Positions, 1)
		assert.Equal(t, "from-a", s.Positions[0].ID)
		return nil
	}))
}

func TestOpen_Backends(t *testing.T) {
	cfg := &store.Config{}
	cfg.Risk.AccountEquity = 50000
	cfg.Ledger.Backend = store.LedgerMemory

	l, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	cfg.Ledger.Backend = store.LedgerSQLite
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "nested", "risk.db")
	l, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, l)
	require.NoError(t, l.Close())

	cfg.Ledger.Backend = store.LedgerPostgres
	cfg.Ledger.DSNEnv = "GATE_TEST_UNSET_DSN"
	t.Setenv("GATE_TEST_UNSET_DSN", "")
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
