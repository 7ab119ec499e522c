package client

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the client-side sqlite state: the link to an account and
// the offline request queue.
type Store struct {
	db *sql.DB
}

// SyncInfo is the single row describing this installation's link.
type SyncInfo struct {
	Code          string
	DeviceID      string
	DeviceName    string
	LastSyncedAt  int64
	ServerUpdated int64
}

// OpenStore opens (creating if needed) the client database at path.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sync_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		code TEXT NOT NULL DEFAULT '',
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT '',
		last_synced_at INTEGER NOT NULL DEFAULT 0,
		server_updated INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		method TEXT NOT NULL,
		body BLOB,
		enqueued_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSyncInfo returns the installation row, seeding it from the
// identity on first run.
func (s *Store) EnsureSyncInfo(ctx context.Context, id *Identity) (*SyncInfo, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_info (id, device_id, device_name) VALUES (1, $1, $2)
		 ON CONFLICT(id) DO NOTHING`,
		id.DeviceID, id.DeviceName)
	if err != nil {
		return nil, err
	}

	info := &SyncInfo{}
	err = s.db.QueryRowContext(ctx,
		`SELECT code, device_id, device_name, last_synced_at, server_updated
		 FROM sync_info WHERE id = 1`).
		Scan(&info.Code, &info.DeviceID, &info.DeviceName, &info.LastSyncedAt, &info.ServerUpdated)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// SaveSyncInfo persists the installation row.
func (s *Store) SaveSyncInfo(ctx context.Context, info *SyncInfo) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_info
		 SET code = $1, device_id = $2, device_name = $3, last_synced_at = $4, server_updated = $5
		 WHERE id = 1`,
		info.Code, info.DeviceID, info.DeviceName, info.LastSyncedAt, info.ServerUpdated)
	return err
}
