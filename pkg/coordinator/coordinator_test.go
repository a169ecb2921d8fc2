package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/queue"
)

type staticKeys map[string]string

func (k staticKeys) Key(service string) string { return k[service] }

func newRegistry() *queue.Registry {
	return queue.NewRegistry(&queue.StaticKeyResolver{
		Services: map[string]bool{"openai": true},
		Limits:   map[string]queue.Limits{"openai": {RPM: 100, TPM: 100_000}},
	})
}

func sampleTask(id string) model.RenderedTask {
	return model.RenderedTask{
		Task:            model.Task{ID: id},
		Service:         "openai",
		ModelName:       "gpt-4",
		EstimatedTokens: 50,
	}
}

func TestTryAssign_AssignsEnqueuedTask(t *testing.T) {
	reg := newRegistry()
	c := New(reg, staticKeys{"openai": "sk-test"})

	_, ok := c.Enqueue(sampleTask("t1"))
	require.True(t, ok)

	a, ok := c.TryAssign(time.Now())
	require.True(t, ok)
	assert.Equal(t, "t1", a.Task.Task.ID)
	assert.Equal(t, "sk-test", a.APIKey)
}

func TestTryAssign_EmptyHeapReturnsFalse(t *testing.T) {
	reg := newRegistry()
	c := New(reg, staticKeys{})

	_, ok := c.TryAssign(time.Now())
	assert.False(t, ok)
}

func TestRequestWork_WakesOnEnqueue(t *testing.T) {
	reg := newRegistry()
	c := New(reg, staticKeys{"openai": "sk-test"})

	result := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, ok := c.RequestWork(ctx, "worker-1", 2*time.Second)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	c.Enqueue(sampleTask("t2"))

	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("RequestWork did not return after enqueue")
	}
}

func TestCompleteWork_ReconcilesQueue(t *testing.T) {
	reg := newRegistry()
	c := New(reg, staticKeys{"openai": "sk-test"})

	c.Enqueue(sampleTask("t3"))
	a, ok := c.TryAssign(time.Now())
	require.True(t, ok)

	actual := 10
	c.CompleteWork(WorkCompletion{
		TaskID:          "t3",
		QueueID:         a.QueueID,
		EstimatedTokens: a.EstimatedTokens,
		ActualTokens:    &actual,
	})

	assert.Empty(t, c.inflight)

	q, ok := reg.QueueByID(a.QueueID)
	require.True(t, ok)
	assert.Equal(t, 10, q.Stats().TokenCount, "50 estimated tokens reconciled down to the 10 actually used")
}

func TestRequeueStaleTasks_RequeuesOldAssignments(t *testing.T) {
	reg := newRegistry()
	c := New(reg, staticKeys{"openai": "sk-test"})

	c.Enqueue(sampleTask("t4"))
	_, ok := c.TryAssign(time.Now())
	require.True(t, ok)

	// Simulate an assignment old enough to be stale.
	c.mu.Lock()
	entry := c.inflight["t4"]
	entry.assignedAt = time.Now().Add(-time.Hour)
	c.inflight["t4"] = entry
	c.mu.Unlock()

	requeued := c.RequeueStaleTasks(time.Minute)
	assert.Equal(t, []string{"t4"}, requeued)

	a, ok := c.TryAssign(time.Now())
	require.True(t, ok)
	assert.Equal(t, "t4", a.Task.Task.ID)
}
