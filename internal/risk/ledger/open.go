package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
	"trading-gate/internal/store"
)

// Open builds the ledger backend named in cfg. The Postgres DSN is read from
// the environment variable cfg.Ledger.DSNEnv.
func Open(ctx context.Context, cfg *store.Config) (risk.Ledger, error) {
	equity := decimal.NewFromFloat(cfg.Risk.AccountEquity)

	switch cfg.Ledger.Backend {
	case store.LedgerMemory:
		return NewMemory(equity), nil
	case store.LedgerSQLite:
		if dir := filepath.Dir(cfg.Ledger.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
		return NewSQLite(cfg.Ledger.Path, equity)
	case store.LedgerPostgres:
		dsn := os.Getenv(cfg.Ledger.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("%s is not set", cfg.Ledger.DSNEnv)
		}
		return NewPostgres(ctx, dsn, equity)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
