package repository

import (
	"context"
	"database/sql"

	"github.com/casilisto/sync/internal/models"
)

// AccountRepository implements AccountRepo for PostgreSQL/SQLite.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, code string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := models.NowMillis()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (code, created_at) VALUES ($1, $2)`, code, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_state (account_code) VALUES ($1)`, code); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *AccountRepository) Exists(ctx context.Context, code string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx,
		`SELECT code FROM accounts WHERE code = $1`, code).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
