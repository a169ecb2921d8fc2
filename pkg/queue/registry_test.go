package queue

import (
	"testing"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AutoRegistersWhenKeyKnown(t *testing.T) {
	r := NewRegistry(&StaticKeyResolver{Services: map[string]bool{"openai": true}})
	q, ok := r.RouteTask("openai", "gpt-4")
	require.True(t, ok)
	assert.Equal(t, "openai", q.Service)
}

func TestRegistry_NoQueueWithoutKey(t *testing.T) {
	r := NewRegistry(&StaticKeyResolver{Services: map[string]bool{}})
	_, ok := r.RouteTask("anthropic", "claude")
	assert.False(t, ok)
}

func TestRegistry_RoutesToShallowestQueue(t *testing.T) {
	r := NewRegistry(&StaticKeyResolver{Services: map[string]bool{"openai": true}})
	q1 := New("q1", "openai", "gpt-4", Limits{RPM: 1000, TPM: 100_000})
	q2 := New("q2", "openai", "gpt-4", Limits{RPM: 1000, TPM: 100_000})
	r.RegisterQueue(q1)
	r.RegisterQueue(q2)

	q1.Enqueue(model.RenderedTask{Task: model.Task{ID: "t1"}})

	chosen, ok := r.RouteTask("openai", "gpt-4")
	require.True(t, ok)
	assert.Equal(t, "q2", chosen.ID, "should route to the shallower queue")
}

func TestRegistry_EnqueueTaskPushesHeapOnlyWhenWasEmpty(t *testing.T) {
	r := NewRegistry(&StaticKeyResolver{Services: map[string]bool{"openai": true}})
	task := model.RenderedTask{Task: model.Task{ID: "t1"}, Service: "openai", ModelName: "gpt-4", EstimatedTokens: 100}

	q, ok := r.EnqueueTask(task)
	require.True(t, ok)
	assert.Equal(t, 1, r.Heap().Len())

	task2 := model.RenderedTask{Task: model.Task{ID: "t2"}, Service: "openai", ModelName: "gpt-4", EstimatedTokens: 100}
	_, ok = r.EnqueueTask(task2)
	require.True(t, ok)
	assert.Equal(t, 1, r.Heap().Len(), "second enqueue onto a non-empty queue must not push again")
	assert.Equal(t, 2, q.Len())
}
