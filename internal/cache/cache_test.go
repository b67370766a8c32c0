package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "flowforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var registryFixture = []byte(`{
	"version": "1.0.0",
	"features": {
		"dark-mode": {"id": "dark-mode", "title": "Dark mode", "status": "in-progress"},
		"auth": {"id": "auth", "title": "Auth", "status": "review"}
	},
	"merge_queue": []
}`)

func TestCacheProject_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	err := db.CacheProject("webapp", "/home/pi/projects/webapp", []byte(`{"version":"1.0.0"}`), registryFixture)
	require.NoError(t, err)

	p, err := db.GetProject("webapp")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "/home/pi/projects/webapp", p.Path)
	assert.JSONEq(t, string(registryFixture), string(p.RegistryJSON))
	assert.False(t, p.CachedAt.IsZero())

	features, err := db.ListFeatures("webapp")
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "auth", features[0].ID)
	assert.Equal(t, "dark-mode", features[1].ID)

	f, err := db.GetFeature("webapp", "dark-mode")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Dark mode", f.Title)
}

func TestCacheProject_ReplacesFeatureRows(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.CacheProject("webapp", "/p", nil, registryFixture))

	// re-cache with one feature removed; the stale row must disappear
	smaller := []byte(`{"version":"1.0.0","features":{"auth":{"id":"auth","title":"Auth","status":"review"}}}`)
	require.NoError(t, db.CacheProject("webapp", "/p", nil, smaller))

	features, err := db.ListFeatures("webapp")
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "auth", features[0].ID)

	gone, err := db.GetFeature("webapp", "dark-mode")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGetProject_Missing(t *testing.T) {
	db := openTestDB(t)
	p, err := db.GetProject("ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestQueueAndDrainOperations(t *testing.T) {
	db := openTestDB(t)

	id1, err := db.QueueOperation("webapp", OpAddFeature, map[string]string{"title": "Dark mode"})
	require.NoError(t, err)
	id2, err := db.QueueOperation("webapp", OpUpdateFeature, map[string]string{"id": "auth", "status": "review"})
	require.NoError(t, err)
	_, err = db.QueueOperation("other", OpDeleteFeature, map[string]string{"id": "old"})
	require.NoError(t, err)

	ops, err := db.GetPending("webapp")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, id1, ops[0].ID, "replay order follows creation order")
	assert.Equal(t, id2, ops[1].ID)

	var payload map[string]string
	require.NoError(t, ops[0].Payload(&payload))
	assert.Equal(t, "Dark mode", payload["title"])

	all, err := db.GetPending("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// syncing operations are still pending work
	require.NoError(t, db.MarkOperationSyncing(id1))
	ops, err = db.GetPending("webapp")
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	require.NoError(t, db.MarkOperationCompleted(id1))
	require.NoError(t, db.MarkOperationFailed(id2, "ssh timed out"))

	ops, err = db.GetPending("webapp")
	require.NoError(t, err)
	assert.Empty(t, ops)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedOps)
	assert.Equal(t, 1, stats.FailedOps)
	assert.Equal(t, 1, stats.PendingOps)

	n, err := db.ClearCompleted()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMarkOperation_NotFound(t *testing.T) {
	db := openTestDB(t)
	err := db.MarkOperationCompleted(999)
	assert.ErrorContains(t, err, "not found")
}

func TestSyncState(t *testing.T) {
	db := openTestDB(t)

	st, err := db.GetSyncState("webapp")
	require.NoError(t, err)
	assert.Equal(t, SyncUnknown, st.SyncStatus)
	assert.Nil(t, st.LastSync)

	require.NoError(t, db.UpdateSyncState("webapp", "abcd1234abcd1234", SyncSynced))
	st, err = db.GetSyncState("webapp")
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, st.SyncStatus)
	assert.Equal(t, "abcd1234abcd1234", st.LastMacRegistryHash)
	require.NotNil(t, st.LastSync)

	require.NoError(t, db.UpdateSyncState("webapp", "ffff0000ffff0000", SyncConflict))
	st, err = db.GetSyncState("webapp")
	require.NoError(t, err)
	assert.Equal(t, SyncConflict, st.SyncStatus)
	assert.Equal(t, "ffff0000ffff0000", st.LastMacRegistryHash)
}

func TestRegistryHash(t *testing.T) {
	h1, err := RegistryHash([]byte(`{"b": 1, "a": 2}`))
	require.NoError(t, err)
	h2, err := RegistryHash([]byte(`{
		"a": 2,
		"b": 1
	}`))
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "hash is independent of key order and whitespace")
	assert.Len(t, h1, 16)

	h3, err := RegistryHash([]byte(`{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = RegistryHash([]byte(`not json`))
	assert.Error(t, err)
}

func TestGetStats_Empty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.Projects)
	assert.Zero(t, stats.PendingOps)
}
