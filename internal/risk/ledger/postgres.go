package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
	"trading-gate/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS risk_account (
	id                 SMALLINT PRIMARY KEY CHECK (id = 1),
	trading_day        DATE,
	account_equity     NUMERIC NOT NULL DEFAULT 0,
	starting_equity    NUMERIC NOT NULL DEFAULT 0,
	peak_equity        NUMERIC NOT NULL DEFAULT 0,
	breaker_active     BOOLEAN NOT NULL DEFAULT FALSE,
	breaker_reason     TEXT    NOT NULL DEFAULT '',
	breaker_metric     NUMERIC NOT NULL DEFAULT 0,
	breaker_tripped_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS risk_positions (
	id              TEXT PRIMARY KEY,
	strategy        TEXT        NOT NULL DEFAULT '',
	symbol          TEXT        NOT NULL,
	side            TEXT        NOT NULL,
	quantity        INTEGER     NOT NULL,
	entry_price     NUMERIC     NOT NULL,
	stop_loss_price NUMERIC     NOT NULL,
	opened_at       TIMESTAMPTZ NOT NULL
);
`

// Postgres persists risk state in a shared database. Update locks the single
// account row with SELECT ... FOR UPDATE, which serialises admissions from
// every host pointed at the same database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ risk.Ledger = (*Postgres)(nil)

// NewPostgres connects, creates the schema if needed and seeds the account
// with equity when the row does not exist yet.
func NewPostgres(ctx context.Context, dsn string, equity decimal.Decimal) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	e := equity.String()
	_, err = pool.Exec(ctx, `
		INSERT INTO risk_account (id, account_equity, starting_equity, peak_equity)
		VALUES (1, $1::numeric, $1::numeric, $1::numeric)
		ON CONFLICT (id) DO NOTHING`, e)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed account: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (l *Postgres) View(ctx context.Context, fn func(risk.State) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := postgresLoad(ctx, tx, false)
	if err != nil {
		return err
	}
	return fn(s)
}

func (l *Postgres) Update(ctx context.Context, fn func(*risk.State) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := postgresLoad(ctx, tx, true)
	if err != nil {
		return err
	}
	if err := fn(&s); err != nil {
		return err
	}
	if err := postgresSave(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (l *Postgres) Close() error {
	l.pool.Close()
	return nil
}

func postgresLoad(ctx context.Context, tx pgx.Tx, lock bool) (risk.State, error) {
	query := `
		SELECT trading_day, account_equity::text, starting_equity::text, peak_equity::text,
		       breaker_active, breaker_reason, breaker_metric::text, breaker_tripped_at
		FROM risk_account WHERE id = 1`
	if lock {
		query += " FOR UPDATE"
	}

	var (
		s                              risk.State
		day, tripped                   *time.Time
		equity, starting, peak, metric string
	)
	err := tx.QueryRow(ctx, query).Scan(&day, &equity, &starting, &peak, &s.BreakerActive, &s.BreakerReason, &metric, &tripped)
	if err != nil {
		return s, fmt.Errorf("load account: %w", err)
	}
	if day != nil {
		s.TradingDay = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	}
	if tripped != nil {
		s.BreakerTrippedAt = tripped.UTC()
	}
	if err := parseDecimals(
		equity, &s.AccountEquity,
		starting, &s.StartingEquity,
		peak, &s.PeakEquity,
		metric, &s.BreakerMetric,
	); err != nil {
		return s, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, strategy, symbol, side, quantity, entry_price::text, stop_loss_price::text, opened_at
		FROM risk_positions ORDER BY opened_at, id`)
	if err != nil {
		return s, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p           types.Position
			side        string
			entry, stop string
		)
		if err := rows.Scan(&p.ID, &p.Strategy, &p.Symbol, &side, &p.Quantity, &entry, &stop, &p.OpenedAt); err != nil {
			return s, err
		}
		p.Side = types.Side(side)
		p.OpenedAt = p.OpenedAt.UTC()
		if err := parseDecimals(entry, &p.EntryPrice, stop, &p.StopLossPrice); err != nil {
			return s, err
		}
		s.Positions = append(s.Positions, p)
	}
	return s, rows.Err()
}

func postgresSave(ctx context.Context, tx pgx.Tx, s risk.State) error {
	_, err := tx.Exec(ctx, `
		UPDATE risk_account SET
			trading_day = $1, account_equity = $2::numeric, starting_equity = $3::numeric,
			peak_equity = $4::numeric, breaker_active = $5, breaker_reason = $6,
			breaker_metric = $7::numeric, breaker_tripped_at = $8
		WHERE id = 1`,
		nullTime(s.TradingDay),
		s.AccountEquity.String(), s.StartingEquity.String(), s.PeakEquity.String(),
		s.BreakerActive, s.BreakerReason, s.BreakerMetric.String(),
		nullTime(s.BreakerTrippedAt),
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM risk_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	if len(s.Positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range s.Positions {
		batch.Queue(`
			INSERT INTO risk_positions
			(id, strategy, symbol, side, quantity, entry_price, stop_loss_price, opened_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)`,
			p.ID, p.Strategy, p.Symbol, string(p.Side), p.Quantity,
			p.EntryPrice.String(), p.StopLossPrice.String(), p.OpenedAt.UTC(),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
