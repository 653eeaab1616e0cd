// Package db provides the SQLite connection and schema for sunrise.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Run ledger - append-only history of wake-up runs, one row per event
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			step INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 0,
			device TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_run_ledger_run ON run_ledger(run_id, id);
		CREATE INDEX IF NOT EXISTS idx_run_ledger_type_ts ON run_ledger(event_type, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create run_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
