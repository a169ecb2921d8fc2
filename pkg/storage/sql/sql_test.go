package sql

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/jobrunner/pkg/config"
)

// newTestStore spins up a disposable Postgres container, points a
// Store at it (running the embedded migrations), and tears the
// container down when t ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	mapped, err := pgContainer.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)
	port, err := mapped.Int()
	require.NoError(t, err)

	store, err := New(ctx, config.DatabaseConfig{
		Host:            host,
		Port:            port,
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
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

func TestStore_PersistentBatchWriteRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items := map[string]any{
		"task:1": map[string]any{"status": "pending"},
		"task:2": map[string]any{"status": "ready"},
		"task:3": map[string]any{"status": "queued"},
	}
	require.NoError(t, store.Persistent().BatchWrite(ctx, items))

	got, err := store.Persistent().BatchRead(ctx, []string{"task:1", "task:2", "task:3", "task:missing"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "ready", got["task:2"].(map[string]any)["status"])
}

func TestStore_PersistentScanAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Persistent().Write(ctx, "job:1:task:a", "x"))
	require.NoError(t, store.Persistent().Write(ctx, "job:1:task:b", "y"))
	require.NoError(t, store.Persistent().Write(ctx, "job:2:task:a", "z"))

	keys, err := store.Persistent().Scan(ctx, "job:1:task:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"job:1:task:a", "job:1:task:b"}, keys)

	require.NoError(t, store.Persistent().Delete(ctx, "job:1:task:a"))
	_, ok, err := store.Persistent().Read(ctx, "job:1:task:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_VolatileIncrementIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := store.Volatile().Increment(ctx, "counter", 1)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	total, err := store.Volatile().Increment(ctx, "counter", 0)
	require.NoError(t, err)
	assert.Equal(t, n, total)
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
