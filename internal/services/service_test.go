package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/repository"
)

type testEnv struct {
	accounts *AccountService
	sync     *SyncService
	devices  *DeviceService
	deviceDB *repository.DeviceRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accountRepo := repository.NewAccountRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	stateRepo := repository.NewSyncStateRepository(db, repository.DriverSQLite)

	return &testEnv{
		accounts: NewAccountService(accountRepo, deviceRepo, stateRepo, nil),
		sync:     NewSyncService(accountRepo, deviceRepo, stateRepo, nil),
		devices:  NewDeviceService(accountRepo, deviceRepo, nil, time.Hour, 30*24*time.Hour),
		deviceDB: deviceRepo,
	}
}

func snapshot(items ...string) *models.SyncData {
	d := &models.SyncData{}
	for i, text := range items {
		d.Items = append(d.Items, models.Item{
			ID:   models.ItemID(string(rune('a' + i))),
			Text: text,
		})
	}
	d.Normalize()
	return d
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)
	assert.Len(t, code, models.CodeLength)
	assert.True(t, models.ValidCode(code))

	// a fresh account starts with empty state
	data, err := env.accounts.Login(ctx, code, "dev-1", "Kitchen tablet")
	require.NoError(t, err)
	assert.Empty(t, data.Items)
	assert.Zero(t, data.UpdatedAt)
}

func TestLoginUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.accounts.Login(context.Background(), "ZZZZ99", "dev-1", "")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestLoginNormalizesCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	_, err = env.accounts.Login(ctx, "  "+code+" ", "dev-1", "")
	require.NoError(t, err)

	devices, err := env.devices.List(ctx, code)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-1", devices[0].ID)
}

func TestPushSeedsEmptyAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	res, err := env.sync.Push(ctx, code, "dev-1", "Phone", snapshot("Milk", "Eggs"))
	require.NoError(t, err)
	assert.False(t, res.Merged, "first push onto an empty account must not merge")
	assert.Len(t, res.MergedData.Items, 2)
	assert.Positive(t, res.ServerUpdatedAt)
}

func TestPushAlwaysMergesNonEmptyServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	_, err = env.sync.Push(ctx, code, "dev-1", "Phone", snapshot("Milk"))
	require.NoError(t, err)

	// second device pushes a disjoint list; both survive
	res, err := env.sync.Push(ctx, code, "dev-2", "Laptop", snapshot("Bread"))
	require.NoError(t, err)
	assert.True(t, res.Merged)

	texts := make([]string, 0, len(res.MergedData.Items))
	for _, it := range res.MergedData.Items {
		texts = append(texts, it.Text)
	}
	assert.ElementsMatch(t, []string{"Milk", "Bread"}, texts)
}

func TestPushUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sync.Push(context.Background(), "AAAAAA", "dev-1", "", snapshot("Milk"))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestPushTimestampsAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 3; i++ {
		res, err := env.sync.Push(ctx, code, "dev-1", "", snapshot("Milk"))
		require.NoError(t, err)
		assert.Greater(t, res.ServerUpdatedAt, last)
		last = res.ServerUpdatedAt
	}
}

func TestPullCursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	res, err := env.sync.Push(ctx, code, "dev-1", "", snapshot("Milk"))
	require.NoError(t, err)

	t.Run("stale cursor sees changes", func(t *testing.T) {
		pull, err := env.sync.Pull(ctx, code, "dev-1", "", 0)
		require.NoError(t, err)
		assert.True(t, pull.HasChanges)
		require.NotNil(t, pull.Data)
		assert.Len(t, pull.Data.Items, 1)
		assert.Equal(t, res.ServerUpdatedAt, pull.ServerUpdatedAt)
	})

	t.Run("current cursor sees nothing", func(t *testing.T) {
		pull, err := env.sync.Pull(ctx, code, "dev-1", "", res.ServerUpdatedAt)
		require.NoError(t, err)
		assert.False(t, pull.HasChanges)
		assert.Nil(t, pull.Data)
		assert.Equal(t, res.ServerUpdatedAt, pull.ServerUpdatedAt)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := env.sync.Pull(ctx, "AAAAAA", "dev-1", "", 0)
		assert.ErrorIs(t, err, models.ErrAccountNotFound)
	})
}

func TestUnlinkDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	_, err = env.accounts.Login(ctx, code, "dev-1", "Phone")
	require.NoError(t, err)
	_, err = env.accounts.Login(ctx, code, "dev-2", "Laptop")
	require.NoError(t, err)

	found, err := env.devices.Unlink(ctx, code, "dev-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = env.devices.Unlink(ctx, code, "dev-1")
	require.NoError(t, err)
	assert.False(t, found, "second unlink of the same device finds nothing")

	devices, err := env.devices.List(ctx, code)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-2", devices[0].ID)
}

func TestDeviceLimitSurfacesFromLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.accounts.CreateAccount(ctx)
	require.NoError(t, err)

	for i := 0; i < models.MaxDevicesPerAccount; i++ {
		_, err := env.accounts.Login(ctx, code, string(rune('a'+i)), "")
		require.NoError(t, err)
	}

	_, err = env.accounts.Login(ctx, code, "one-too-many", "")
	assert.ErrorIs(t, err, models.ErrDeviceLimitExceeded)
}
