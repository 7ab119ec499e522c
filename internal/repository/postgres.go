package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// DriverPostgres selects the PostgreSQL backend.
const DriverPostgres = "postgres"

// NewPostgresDB creates and initializes a PostgreSQL database
// connection.
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		code TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		account_code TEXT NOT NULL REFERENCES accounts(code) ON DELETE CASCADE,
		name TEXT NOT NULL,
		last_seen BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_account ON devices(account_code);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);

	CREATE TABLE IF NOT EXISTS sync_state (
		account_code TEXT PRIMARY KEY REFERENCES accounts(code) ON DELETE CASCADE,
		items TEXT NOT NULL DEFAULT '[]',
		categories TEXT NOT NULL DEFAULT '{}',
		master_list TEXT NOT NULL DEFAULT '[]',
		favorites TEXT NOT NULL DEFAULT '[]',
		baco_mode INTEGER NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0
	);
	`

	_, err := db.Exec(schema)
	return err
}

func isPostgresUniqueViolation(err error) bool {
	var perr *pq.Error
	if errors.As(err, &perr) {
		return perr.Code == "23505"
	}
	return false
}

// IsUniqueViolation reports whether err is a primary key or unique
// constraint violation on either backend.
func IsUniqueViolation(err error) bool {
	return isSQLiteUniqueViolation(err) || isPostgresUniqueViolation(err)
}
