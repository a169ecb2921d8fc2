package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_TryAcquireWithinCapacity(t *testing.T) {
	b := NewTokenBucket(10, 1)
	require.True(t, b.TryAcquire(10))
	assert.False(t, b.TryAcquire(1))
}

func TestTokenBucket_RefillOverTime(t *testing.T) {
	fixed := time.Now()
	b := NewTokenBucket(10, 10) // 10 tokens/sec
	b.now = func() time.Time { return fixed }
	b.lastRefill = fixed
	require.True(t, b.TryAcquire(10))
	require.False(t, b.TryAcquire(1))

	fixed = fixed.Add(500 * time.Millisecond)
	assert.True(t, b.TryAcquire(5))
}

func TestTokenBucket_TimeUntilAvailable(t *testing.T) {
	fixed := time.Now()
	b := NewTokenBucket(10, 2) // 2 tokens/sec
	b.now = func() time.Time { return fixed }
	require.True(t, b.TryAcquire(10))

	wait := b.TimeUntilAvailable(4)
	assert.InDelta(t, 2*time.Second, wait, float64(50*time.Millisecond))
}

func TestTokenBucket_ReconcileCreditsUnderuse(t *testing.T) {
	fixed := time.Now()
	b := NewTokenBucket(100, 1)
	b.now = func() time.Time { return fixed }
	require.True(t, b.TryAcquire(50))
	b.Reconcile(50, 30) // estimated 50, actually used 30: credit 20 back
	assert.InDelta(t, 70, b.Tokens(), 0.01)
}

func TestTokenBucket_ReconcileAllowsNegative(t *testing.T) {
	b := NewTokenBucket(10, 0)
	require.True(t, b.TryAcquire(10))
	b.Reconcile(10, 50) // actual usage exceeded estimate
	assert.Less(t, b.Tokens(), 0.0)
}
