package repository

import (
	"context"
	"database/sql"

	"github.com/casilisto/sync/internal/models"
)

// DeviceRepository implements DeviceRepo for PostgreSQL/SQLite.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register upserts the device. A known id refreshes last_seen and name
// unconditionally; a new id counts against the per-account cap. The
// count and the insert run in the same transaction so concurrent logins
// cannot oversubscribe the cap.
func (r *DeviceRepository) Register(ctx context.Context, accountCode, deviceID, name string) error {
	if name == "" {
		name = models.DefaultDeviceName
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM devices WHERE id = $1`, deviceID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if err == sql.ErrNoRows {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM devices WHERE account_code = $1`, accountCode).Scan(&count); err != nil {
			return err
		}
		if count >= models.MaxDevicesPerAccount {
			return models.ErrDeviceLimitExceeded
		}
	}

	now := models.NowMillis()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO devices (id, account_code, name, last_seen, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(id) DO UPDATE SET
			last_seen = excluded.last_seen,
			name = excluded.name`,
		deviceID, accountCode, name, now, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *DeviceRepository) ListForAccount(ctx context.Context, accountCode string) ([]*models.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_code, name, last_seen, created_at
		FROM devices
		WHERE account_code = $1
		ORDER BY last_seen DESC`, accountCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var device models.Device
		if err := rows.Scan(&device.ID, &device.AccountCode, &device.Name,
			&device.LastSeen, &device.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}
	return devices, rows.Err()
}

func (r *DeviceRepository) Delete(ctx context.Context, accountCode, deviceID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE id = $1 AND account_code = $2`, deviceID, accountCode)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (r *DeviceRepository) DeleteStale(ctx context.Context, olderThan int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE last_seen < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
