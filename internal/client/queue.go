package client

import (
	"context"
	"time"
)

// QueueEntry is one captured write waiting for connectivity. Entries
// replay oldest first and are removed only after the server accepts
// them.
type QueueEntry struct {
	ID         int64
	Path       string
	Method     string
	Body       []byte
	EnqueuedAt int64
}

// Enqueue appends a request to the offline queue.
func (s *Store) Enqueue(ctx context.Context, path, method string, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (path, method, body, enqueued_at) VALUES ($1, $2, $3, $4)`,
		path, method, body, time.Now().UnixMilli())
	return err
}

// QueuedEntries returns the queue in replay order.
func (s *Store) QueuedEntries(ctx context.Context) ([]*QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, method, body, enqueued_at FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		e := &QueueEntry{}
		if err := rows.Scan(&e.ID, &e.Path, &e.Method, &e.Body, &e.EnqueuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveQueued deletes a replayed entry.
func (s *Store) RemoveQueued(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = $1`, id)
	return err
}

// QueueLen reports how many requests are waiting.
func (s *Store) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}
