package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchHeap_PopsEarliestFirst(t *testing.T) {
	h := NewDispatchHeap()
	now := time.Now()
	h.Push("q1", now.Add(2*time.Second))
	h.Push("q2", now.Add(1*time.Second))
	h.Push("q3", now.Add(3*time.Second))

	id, _, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, "q2", id)

	id, _, ok = h.Pop()
	require.True(t, ok)
	assert.Equal(t, "q1", id)
}

func TestDispatchHeap_LazyInvalidation(t *testing.T) {
	h := NewDispatchHeap()
	now := time.Now()
	h.Push("q1", now.Add(5*time.Second))
	// Superseding push for the same queue invalidates the earlier entry
	// without needing to locate and remove it from the heap.
	h.Push("q1", now.Add(1*time.Second))

	id, avail, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, "q1", id)
	assert.WithinDuration(t, now.Add(1*time.Second), avail, 10*time.Millisecond)

	_, _, ok = h.Pop()
	assert.False(t, ok, "the stale first push must not resurface")
}

func TestDispatchHeap_EmptyPop(t *testing.T) {
	h := NewDispatchHeap()
	_, _, ok := h.Pop()
	assert.False(t, ok)
}
