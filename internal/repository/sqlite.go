package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// DriverSQLite is the driver name passed to repositories that need to
// know which backend they run against.
const DriverSQLite = "sqlite3"

// NewSQLiteDB creates and initializes a SQLite database. WAL journal
// mode matches the original deployment; _txlock=immediate takes the
// write lock at BEGIN so the push read-merge-write sequence serializes
// per database instead of failing at commit.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Accounts (the 6-character code is the only credential)
	CREATE TABLE IF NOT EXISTS accounts (
		code TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	-- Devices linked to an account
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		account_code TEXT NOT NULL REFERENCES accounts(code) ON DELETE CASCADE,
		name TEXT NOT NULL,
		last_seen INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_account ON devices(account_code);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);

	-- Canonical dataset, one row per account; JSON columns are opaque blobs
	CREATE TABLE IF NOT EXISTS sync_state (
		account_code TEXT PRIMARY KEY REFERENCES accounts(code) ON DELETE CASCADE,
		items TEXT NOT NULL DEFAULT '[]',
		categories TEXT NOT NULL DEFAULT '{}',
		master_list TEXT NOT NULL DEFAULT '[]',
		favorites TEXT NOT NULL DEFAULT '[]',
		baco_mode INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := db.Exec(schema)
	return err
}

func isSQLiteUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}
