// Package storage persists turn history and turn logs in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and runs migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// turn_logs has no foreign key: log lines are written while a turn is
// still running, before its first SaveTurn.
func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT NOT NULL UNIQUE,
		instruction  TEXT NOT NULL,
		status       TEXT NOT NULL,
		fail_reason  TEXT NOT NULL DEFAULT '',
		dry_run      INTEGER NOT NULL DEFAULT 0,
		data         TEXT NOT NULL,
		created_at   DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_turns_status ON turns(status);

	CREATE TABLE IF NOT EXISTS turn_logs (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id   TEXT NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		level     TEXT NOT NULL DEFAULT 'info',
		message   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turn_logs_turn ON turn_logs(turn_id, id);
	`

	_, err := d.db.Exec(schema)
	return err
}
