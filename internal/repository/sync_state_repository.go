package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/casilisto/sync/internal/models"
)

// SyncStateRepository implements SyncStateRepo for PostgreSQL/SQLite.
type SyncStateRepository struct {
	db     *sql.DB
	driver string
}

// NewSyncStateRepository creates a new SyncStateRepository. The driver
// name decides how the reconcile transaction locks the account row.
func NewSyncStateRepository(db *sql.DB, driver string) *SyncStateRepository {
	return &SyncStateRepository{db: db, driver: driver}
}

const stateColumns = `items, categories, master_list, favorites, baco_mode, updated_at`

func (r *SyncStateRepository) Get(ctx context.Context, code string) (*models.SyncData, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM sync_state WHERE account_code = $1`, code)
	return scanState(row)
}

func (r *SyncStateRepository) UpdatedAt(ctx context.Context, code string) (int64, error) {
	var updatedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM sync_state WHERE account_code = $1`, code).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return 0, models.ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return updatedAt, nil
}

// Reconcile runs fn against the account's current state and persists
// the result, all inside one transaction. On SQLite the connection is
// opened with _txlock=immediate so the write lock is held for the whole
// read-merge-write sequence; on PostgreSQL the row is locked with
// FOR UPDATE. Two near-simultaneous pushes therefore serialize and the
// second one merges against the first one's result.
//
// The new timestamp is clamped to previous+1 so back-to-back pushes
// within the same millisecond still advance the pull cursor.
func (r *SyncStateRepository) Reconcile(ctx context.Context, code string, fn func(current *models.SyncData) *models.SyncData) (*models.SyncData, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + stateColumns + ` FROM sync_state WHERE account_code = $1`
	if r.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	current, err := scanState(tx.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}

	next := fn(current)
	if next == nil {
		next = &models.SyncData{}
	}
	next.Normalize()

	ts := models.NowMillis()
	if ts <= current.UpdatedAt {
		ts = current.UpdatedAt + 1
	}
	next.UpdatedAt = ts

	items, err := json.Marshal(next.Items)
	if err != nil {
		return nil, err
	}
	categories, err := json.Marshal(next.Categories)
	if err != nil {
		return nil, err
	}
	masterList, err := json.Marshal(next.MasterList)
	if err != nil {
		return nil, err
	}
	favorites, err := json.Marshal(next.Favorites)
	if err != nil {
		return nil, err
	}
	baco := 0
	if next.BacoEnabled() {
		baco = 1
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_state
		SET items = $1,
			categories = $2,
			master_list = $3,
			favorites = $4,
			baco_mode = $5,
			updated_at = $6
		WHERE account_code = $7`,
		string(items), string(categories), string(masterList), string(favorites),
		baco, ts, code); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*models.SyncData, error) {
	var (
		items, categories, masterList, favorites string
		baco                                     int
		updatedAt                                int64
	)
	err := row.Scan(&items, &categories, &masterList, &favorites, &baco, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	data := &models.SyncData{UpdatedAt: updatedAt}
	if err := json.Unmarshal([]byte(items), &data.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &data.Categories); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(masterList), &data.MasterList); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(favorites), &data.Favorites); err != nil {
		return nil, err
	}
	if baco == 1 {
		data.BacoMode = models.BoolPtr(true)
	} else {
		data.BacoMode = models.BoolPtr(false)
	}
	data.Normalize()
	return data, nil
}
