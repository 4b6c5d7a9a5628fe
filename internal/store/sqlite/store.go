// Package sqlite stores the portfolio and the daily bar cache in one
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // e.g. "data/tradersim.db"
}

// Store implements model.PortfolioStore and model.SeriesCache.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Debug("sqlite opened", "component", "sqlite", "path", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS account (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			starting_cash TEXT    NOT NULL,
			cash          TEXT    NOT NULL,
			realized_pnl  TEXT    NOT NULL,
			start_date    INTEGER NOT NULL,
			day           INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS holdings (
			symbol   TEXT    PRIMARY KEY,
			shares   INTEGER NOT NULL CHECK (shares > 0),
			avg_cost TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transactions (
			seq          INTEGER PRIMARY KEY,
			id           TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			shares       INTEGER NOT NULL,
			price        TEXT    NOT NULL,
			total        TEXT    NOT NULL,
			cash_after   TEXT    NOT NULL,
			realized_pnl TEXT    NOT NULL,
			price_source TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
