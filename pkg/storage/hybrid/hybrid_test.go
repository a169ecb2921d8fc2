package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
)

func TestStore_RoutesPersistentToDurable(t *testing.T) {
	durable := memory.New()
	fast := memory.New()
	s := New(durable, fast)
	ctx := context.Background()

	require.NoError(t, s.Persistent().Write(ctx, "job:1", "durable-value"))

	got, ok, err := durable.Persistent().Read(ctx, "job:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "durable-value", got)

	_, ok, err = fast.Persistent().Read(ctx, "job:1")
	require.NoError(t, err)
	assert.False(t, ok, "Persistent writes must never reach the fast backend")
}

func TestStore_RoutesVolatileAndSetsToFast(t *testing.T) {
	durable := memory.New()
	fast := memory.New()
	s := New(durable, fast)
	ctx := context.Background()

	n, err := s.Volatile().Increment(ctx, "counter", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	fromFast, err := fast.Volatile().Increment(ctx, "counter", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, fromFast)

	added, err := s.Sets().Add(ctx, "ready:job1", "task1")
	require.NoError(t, err)
	assert.True(t, added)

	size, err := fast.Sets().Size(ctx, "ready:job1")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestStore_BlobPrefersFastThenFallsBackToDurable(t *testing.T) {
	durable := memory.New()
	fast := memory.New()
	s := New(durable, fast)

	assert.Same(t, fast.Blob(), s.Blob(), "Blob must prefer the fast backend when it has one")
}

func TestStore_CloseClosesOnlyBackendsThatImplementCloser(t *testing.T) {
	// memory.Store has no Close method, so Close on two memory-backed
	// stores must be a no-op that still returns nil.
	s := New(memory.New(), memory.New())
	assert.NoError(t, s.Close())
}
