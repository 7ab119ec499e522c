package repository

import (
	"context"

	"github.com/casilisto/sync/internal/models"
)

// AccountRepo manages account rows and their paired sync state rows.
type AccountRepo interface {
	// Create inserts the account and its empty sync state atomically.
	// Returns the driver's unique violation on a code collision.
	Create(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
}

// DeviceRepo tracks devices per account and enforces the cap.
type DeviceRepo interface {
	Register(ctx context.Context, accountCode, deviceID, name string) error
	ListForAccount(ctx context.Context, accountCode string) ([]*models.Device, error)
	Delete(ctx context.Context, accountCode, deviceID string) (bool, error)
	DeleteStale(ctx context.Context, olderThan int64) (int64, error)
}

// SyncStateRepo owns the canonical dataset per account.
type SyncStateRepo interface {
	Get(ctx context.Context, code string) (*models.SyncData, error)
	UpdatedAt(ctx context.Context, code string) (int64, error)
	// Reconcile runs fn against the current state inside a single
	// serialized transaction and persists the result with a fresh
	// server timestamp.
	Reconcile(ctx context.Context, code string, fn func(current *models.SyncData) *models.SyncData) (*models.SyncData, error)
}
