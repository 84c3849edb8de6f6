package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"trading-gate/internal/risk"
	"trading-gate/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS risk_account (
	id                 INTEGER PRIMARY KEY CHECK (id = 1),
	trading_day        TEXT    NOT NULL DEFAULT '',
	account_equity     TEXT    NOT NULL DEFAULT '0',
	starting_equity    TEXT    NOT NULL DEFAULT '0',
	peak_equity        TEXT    NOT NULL DEFAULT '0',
	breaker_active     INTEGER NOT NULL DEFAULT 0,
	breaker_reason     TEXT    NOT NULL DEFAULT '',
	breaker_metric     TEXT    NOT NULL DEFAULT '0',
	breaker_tripped_at TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS risk_positions (
	id              TEXT PRIMARY KEY,
	strategy        TEXT    NOT NULL DEFAULT '',
	symbol          TEXT    NOT NULL,
	side            TEXT    NOT NULL,
	quantity        INTEGER NOT NULL,
	entry_price     TEXT    NOT NULL,
	stop_loss_price TEXT    NOT NULL,
	opened_at       TEXT    NOT NULL
);
`

// SQLite persists risk state in a SQLite file. Transactions begin with
// BEGIN IMMEDIATE, taking the database write lock up front, so processes on
// the same host serialise their admissions.
type SQLite struct {
	db *sql.DB
}

var _ risk.Ledger = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the ledger at path. equity seeds the
// account only when the file is new.
func NewSQLite(path string, equity decimal.Decimal) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	e := equity.String()
	if _, err := db.Exec(`INSERT OR IGNORE INTO risk_account (id, account_equity, starting_equity, peak_equity) VALUES (1, ?, ?, ?)`, e, e, e); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed account: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (l *SQLite) View(ctx context.Context, fn func(risk.State) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := sqliteLoad(ctx, tx)
	if err != nil {
		return err
	}
	return fn(s)
}

func (l *SQLite) Update(ctx context.Context, fn func(*risk.State) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := sqliteLoad(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(&s); err != nil {
		return err
	}
	if err := sqliteSave(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *SQLite) Close() error {
	return l.db.Close()
}

func sqliteLoad(ctx context.Context, tx *sql.Tx) (risk.State, error) {
	var (
		s                              risk.State
		day, tripped                   string
		equity, starting, peak, metric string
		active                         bool
	)
	err := tx.QueryRowContext(ctx, `
		SELECT trading_day, account_equity, starting_equity, peak_equity,
		       breaker_active, breaker_reason, breaker_metric, breaker_tripped_at
		FROM risk_account WHERE id = 1`,
	).Scan(&day, &equity, &starting, &peak, &active, &s.BreakerReason, &metric, &tripped)
	if err != nil {
		return s, fmt.Errorf("load account: %w", err)
	}

	s.BreakerActive = active
	if s.TradingDay, err = parseTime("2006-01-02", day); err != nil {
		return s, err
	}
	if s.BreakerTrippedAt, err = parseTime(time.RFC3339Nano, tripped); err != nil {
		return s, err
	}
	if err := parseDecimals(
		equity, &s.AccountEquity,
		starting, &s.StartingEquity,
		peak, &s.PeakEquity,
		metric, &s.BreakerMetric,
	); err != nil {
		return s, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, strategy, symbol, side, quantity, entry_price, stop_loss_price, opened_at
		FROM risk_positions ORDER BY opened_at, id`)
	if err != nil {
		return s, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                   types.Position
			entry, stop, opened string
		)
		if err := rows.Scan(&p.ID, &p.Strategy, &p.Symbol, &p.Side, &p.Quantity, &entry, &stop, &opened); err != nil {
			return s, err
		}
		if err := parseDecimals(entry, &p.EntryPrice, stop, &p.StopLossPrice); err != nil {
			return s, err
		}
		if p.OpenedAt, err = parseTime(time.RFC3339Nano, opened); err != nil {
			return s, err
		}
		s.Positions = append(s.Positions, p)
	}
	return s, rows.Err()
}

func sqliteSave(ctx context.Context, tx *sql.Tx, s risk.State) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE risk_account SET
			trading_day = ?, account_equity = ?, starting_equity = ?, peak_equity = ?,
			breaker_active = ?, breaker_reason = ?, breaker_metric = ?, breaker_tripped_at = ?
		WHERE id = 1`,
		formatTime("2006-01-02", s.TradingDay),
		s.AccountEquity.String(), s.StartingEquity.String(), s.PeakEquity.String(),
		s.BreakerActive, s.BreakerReason, s.BreakerMetric.String(),
		formatTime(time.RFC3339Nano, s.BreakerTrippedAt),
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM risk_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range s.Positions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_positions
			(id, strategy, symbol, side, quantity, entry_price, stop_loss_price, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Strategy, p.Symbol, string(p.Side), p.Quantity,
			p.EntryPrice.String(), p.StopLossPrice.String(),
			formatTime(time.RFC3339Nano, p.OpenedAt.UTC()),
		)
		if err != nil {
			return fmt.Errorf("save position %s: %w", p.ID, err)
		}
	}
	return nil
}

func parseTime(layout, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}

func formatTime(layout string, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// parseDecimals takes (text, *decimal.Decimal) pairs.
func parseDecimals(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		v := pairs[i].(string)
		dst := pairs[i+1].(*decimal.Decimal)
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", v, err)
		}
		*dst = d
	}
	return nil
}
