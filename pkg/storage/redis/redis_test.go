package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore starts an in-process miniredis instance and points a
// Store at it, one logical DB per namespace. Grounded on
// itsneelabh-gomind's core/schema_cache_test.go setupTestRedis helper,
// which exercises the same go-redis/redis/v8 client against miniredis
// rather than a real server.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := New(Options{
		URL:          "redis://" + mr.Addr(),
		Namespace:    "test",
		PersistentDB: 0,
		VolatileDB:   1,
		SetsDB:       2,
		BlobDB:       3,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestStore_PersistentWriteRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Persistent().Write(ctx, "job:1", map[string]any{"state": "running"}))

	got, ok, err := store.Persistent().Read(ctx, "job:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "running", got.(map[string]any)["state"])

	_, ok, err = store.Persistent().Read(ctx, "job:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PersistentBatchWriteReadAndScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items := map[string]any{
		"task:1": "pending",
		"task:2": "ready",
		"task:3": "queued",
	}
	require.NoError(t, store.Persistent().BatchWrite(ctx, items))

	got, err := store.Persistent().BatchRead(ctx, []string{"task:1", "task:2", "task:3", "task:missing"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "ready", got["task:2"])

	keys, err := store.Persistent().Scan(ctx, "task:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task:1", "task:2", "task:3"}, keys)

	require.NoError(t, store.Persistent().Delete(ctx, "task:1"))
	_, ok, err := store.Persistent().Read(ctx, "task:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_VolatileIncrementIsIsolatedFromPersistent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.Volatile().Increment(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = store.Volatile().Increment(ctx, "counter", 2)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	// Volatile and Persistent point at different DBs, so a same-named
	// key in Persistent must not see the counter.
	_, ok, err := store.Persistent().Read(ctx, "counter")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_VolatileIntWriteInteroperatesWithIncrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A counter seeded by Write (e.g. a task's initial unmet_deps) must
	// be mutable by Increment and readable afterwards.
	require.NoError(t, store.Volatile().Write(ctx, "task:1:unmet_deps", 2))

	n, err := store.Volatile().Increment(ctx, "task:1:unmet_deps", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok, err := store.Volatile().Read(ctx, "task:1:unmet_deps")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestStore_SetsAddPopMembership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := store.Sets().AddMultiple(ctx, "ready:job1", []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	size, err := store.Sets().Size(ctx, "ready:job1")
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	present, err := store.Sets().CheckMembership(ctx, "ready:job1", []string{"t1", "tX"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, present)

	popped, err := store.Sets().PopMultiple(ctx, "ready:job1", 2)
	require.NoError(t, err)
	assert.Len(t, popped, 2)

	remaining, err := store.Sets().Members(ctx, "ready:job1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestStore_BlobRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Blob().PutBlob(ctx, "scenario:1:file", []byte("hello"), map[string]string{"mime": "text/plain"}))

	data, meta, ok, err := store.Blob().GetBlob(ctx, "scenario:1:file")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "text/plain", meta["mime"])

	require.NoError(t, store.Blob().DeleteBlob(ctx, "scenario:1:file"))
	_, _, ok, err = store.Blob().GetBlob(ctx, "scenario:1:file")
	require.NoError(t, err)
	assert.False(t, ok)
}
