package queue

import (
	"testing"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New("q1", "openai", "gpt", Limits{RPM: 60, TPM: 10_000})
	q.Enqueue(model.RenderedTask{Task: model.Task{ID: "t1"}})
	q.Enqueue(model.RenderedTask{Task: model.Task{ID: "t2"}})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "t1", first.Task.ID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "t2", second.Task.ID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_TryAcquireBoundedByTPM(t *testing.T) {
	q := New("q1", "openai", "gpt", Limits{RPM: 1000, TPM: 1000})
	// 500 estimated tokens per task; TPM capacity 1000 => 2 acquires succeed
	require.True(t, q.TryAcquire(500))
	require.True(t, q.TryAcquire(500))
	assert.False(t, q.TryAcquire(500))
}

func TestQueue_StatsFreezeWhenEmpty(t *testing.T) {
	q := New("q1", "openai", "gpt", Limits{RPM: 60, TPM: 10_000})
	q.Enqueue(model.RenderedTask{Task: model.Task{ID: "t1"}})
	require.True(t, q.TryAcquire(1))
	q.Dequeue()

	stats := q.Stats()
	assert.False(t, stats.EndTime.IsZero(), "end time should freeze once FIFO empties")

	q.Enqueue(model.RenderedTask{Task: model.Task{ID: "t2"}})
	stats = q.Stats()
	assert.False(t, stats.EndTime.IsZero(), "enqueue alone must not unfreeze stats")

	require.True(t, q.TryAcquire(1))
	stats = q.Stats()
	assert.True(t, stats.EndTime.IsZero(), "a successful acquire unfreezes stats")
}
