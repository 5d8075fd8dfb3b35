// Package ledger is the engine's durable trade journal, backed by SQLite.
// The venue remains authoritative for live position state; the ledger keeps
// the decision trail (what was opened, why, and what happened to it) and
// supports reconciliation after restarts.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"algoedge/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-writer SQLite store.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the ledger database with WAL mode and schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer: one connection avoids SQLITE_BUSY under WAL
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[ledger] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			direction   TEXT NOT NULL,
			volume      REAL NOT NULL,
			open_price  REAL NOT NULL,
			open_time   INTEGER NOT NULL,
			stop_loss   REAL NOT NULL DEFAULT 0,
			take_profit REAL NOT NULL DEFAULT 0,
			confidence  INTEGER NOT NULL DEFAULT 0,
			rationale   TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'open',
			close_price REAL NOT NULL DEFAULT 0,
			close_time  INTEGER,
			profit      REAL NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);

		-- one open trade per instrument per account
		CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_symbol
			ON trades(account_id, symbol) WHERE status = 'open';

		CREATE TABLE IF NOT EXISTS audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			action      TEXT NOT NULL,
			position_id TEXT NOT NULL DEFAULT '',
			symbol      TEXT NOT NULL DEFAULT '',
			detail      TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

// CreateTradeRecord inserts a new open trade.
func (s *Store) CreateTradeRecord(ctx context.Context, rec *model.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, account_id, symbol, direction, volume, open_price,
			open_time, stop_loss, take_profit, confidence, rationale, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.Symbol, string(rec.Direction), rec.Volume,
		rec.OpenPrice, rec.OpenTime.Unix(), rec.StopLoss, rec.TakeProfit,
		rec.Confidence, rec.Rationale, rec.Status)
	if err != nil {
		return fmt.Errorf("ledger insert %s: %w", rec.ID, err)
	}
	return nil
}

// CloseTradeRecord marks a trade closed with its outcome.
func (s *Store) CloseTradeRecord(ctx context.Context, positionID string, closePrice, profit float64, closedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET status = ?, close_price = ?, profit = ?, close_time = ?
		WHERE id = ? AND status = ?`,
		model.TradeClosed, closePrice, profit, closedAt.Unix(), positionID, model.TradeOpen)
	if err != nil {
		return fmt.Errorf("ledger close %s: %w", positionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger close %s: no open trade", positionID)
	}
	return nil
}

// ReduceTradeVolume records a partial close by lowering the remaining volume.
func (s *Store) ReduceTradeVolume(ctx context.Context, positionID string, newVolume float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET volume = ? WHERE id = ? AND status = ?`,
		newVolume, positionID, model.TradeOpen)
	if err != nil {
		return fmt.Errorf("ledger reduce %s: %w", positionID, err)
	}
	return nil
}

// UpdateStop records a stop-loss modification.
func (s *Store) UpdateStop(ctx context.Context, positionID string, stop float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trades SET stop_loss = ? WHERE id = ? AND status = ?`,
		stop, positionID, model.TradeOpen)
	if err != nil {
		return fmt.Errorf("ledger stop %s: %w", positionID, err)
	}
	return nil
}

// OpenTradeRecords returns all trades still recorded as open.
func (s *Store) OpenTradeRecords(ctx context.Context) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, direction, volume, open_price, open_time,
			stop_loss, take_profit, confidence, rationale, status
		FROM trades WHERE status = ? ORDER BY open_time`, model.TradeOpen)
	if err != nil {
		return nil, fmt.Errorf("ledger query open: %w", err)
	}
	defer rows.Close()

	var recs []model.TradeRecord
	for rows.Next() {
		var rec model.TradeRecord
		var dir string
		var openUnix int64
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Symbol, &dir, &rec.Volume,
			&rec.OpenPrice, &openUnix, &rec.StopLoss, &rec.TakeProfit,
			&rec.Confidence, &rec.Rationale, &rec.Status); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		rec.Direction = model.Direction(dir)
		rec.OpenTime = time.Unix(openUnix, 0).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendAudit adds one entry to the audit trail.
func (s *Store) AppendAudit(ctx context.Context, action, positionID, symbol, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, position_id, symbol, detail) VALUES (?, ?, ?, ?)`,
		action, positionID, symbol, detail)
	if err != nil {
		return fmt.Errorf("ledger audit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
