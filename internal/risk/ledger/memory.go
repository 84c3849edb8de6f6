// Package ledger provides risk.Ledger implementations: an in-process memory
// ledger, a SQLite ledger shared by processes on one host, and a Postgres
// ledger shared across hosts.
package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
)

// Memory keeps state in process. Admissions are serialised by a mutex, which
// only protects strategies running inside this process.
type Memory struct {
	mu    sync.Mutex
	state risk.State
}

var _ risk.Ledger = (*Memory)(nil)

// NewMemory starts a ledger with the given equity as both current and
// starting equity.
func NewMemory(equity decimal.Decimal) *Memory {
	return &Memory{state: risk.State{
		AccountEquity:  equity,
		StartingEquity: equity,
		PeakEquity:     equity,
	}}
}

func (m *Memory) View(ctx context.Context, fn func(risk.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	s := m.state.Clone()
	m.mu.Unlock()
	return fn(s)
}

func (m *Memory) Update(ctx context.Context, fn func(*risk.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state.Clone()
	if err := fn(&s); err != nil {
		return err
	}
	m.state = s
	return nil
}

func (m *Memory) Close() error { return nil }
