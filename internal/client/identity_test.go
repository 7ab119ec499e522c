package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureIdentityCreatesAndReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "identity.json")

	first, err := EnsureIdentity(path)
	require.NoError(t, err)

	_, err = uuid.Parse(first.DeviceID)
	assert.NoError(t, err, "device id is a UUID")
	assert.NotEmpty(t, first.DeviceName)

	second, err := EnsureIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID, "identity is stable across loads")
}

func TestEnsureIdentityRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	id, err := EnsureIdentity(path)
	require.NoError(t, err)
	assert.NotEmpty(t, id.DeviceID)
}

func TestQueueOrderAndRemoval(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := t.Context()

	require.NoError(t, store.Enqueue(ctx, "/api/sync/push", "POST", []byte(`{"n":1}`)))
	require.NoError(t, store.Enqueue(ctx, "/api/sync/push", "POST", []byte(`{"n":2}`)))
	require.NoError(t, store.Enqueue(ctx, "/api/sync/push", "POST", []byte(`{"n":3}`)))

	entries, err := store.QueuedEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.JSONEq(t, `{"n":1}`, string(entries[0].Body), "oldest entry replays first")
	assert.JSONEq(t, `{"n":3}`, string(entries[2].Body))

	require.NoError(t, store.RemoveQueued(ctx, entries[0].ID))

	n, err := store.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err = store.QueuedEntries(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(entries[0].Body))
}
