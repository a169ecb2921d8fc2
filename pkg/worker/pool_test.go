package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/coordinator"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/queue"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
	"github.com/codeready-toolchain/jobrunner/pkg/workerregistry"
)

func newPoolHarness(t *testing.T) (*jobservice.Service, *coordinator.Coordinator, *workerregistry.Registry) {
	t.Helper()
	st := memory.New()
	svc := jobservice.New(st)
	reg := queue.NewRegistry(&queue.StaticKeyResolver{
		Services: map[string]bool{"openai": true},
		Limits:   map[string]queue.Limits{"openai": {RPM: 100, TPM: 100_000}},
	})
	coord := coordinator.New(reg, staticKeys{"openai": "sk-test"})
	return svc, coord, workerregistry.New(st)
}

func TestPool_StartSpawnsMinWorkersAndStopTerminatesThem(t *testing.T) {
	svc, coord, wreg := newPoolHarness(t)
	pool := NewPool(PoolConfig{PodID: "pod-a", MinWorkers: 2, MaxWorkers: 2, IdleTimeout: 20 * time.Millisecond}, coord, svc, &fakeLLM{}, wreg)

	ctx := context.Background()
	pool.Start(ctx)
	assert.Len(t, pool.Health(), 2)

	pool.Stop(ctx)
}

func TestPool_ReconcilesOwnOrphansBeforeSpawningWorkers(t *testing.T) {
	svc, coord, wreg := newPoolHarness(t)
	ctx := context.Background()

	job := model.Job{ID: "job-1", RetryPolicy: model.DefaultRetryPolicyTable()}
	require.NoError(t, svc.Stores().PutJob(ctx, job))
	task := model.Task{ID: "orphan-task", JobID: job.ID, InterviewID: "iv-1", QuestionName: "q1"}
	require.NoError(t, svc.Stores().PutTasks(ctx, job.ID, []model.Task{task}))
	require.NoError(t, svc.Stores().InitTaskState(ctx, task.ID, model.NewTaskState(model.TaskRunning, 0)))

	// Simulate a prior process instance of this same pod that crashed
	// mid-task: its registry record is still active, still pointing at
	// the now-stranded task, with a fresh heartbeat (a crash doesn't
	// make the heartbeat stale, it just stops happening).
	require.NoError(t, wreg.Register(ctx, workerregistry.Record{WorkerID: "pod-a-worker-0"}))
	require.NoError(t, wreg.Heartbeat(ctx, "pod-a-worker-0", task.ID, job.ID))

	pool := NewPool(PoolConfig{PodID: "pod-a", MinWorkers: 1, MaxWorkers: 1, IdleTimeout: 20 * time.Millisecond}, coord, svc, &fakeLLM{}, wreg)
	pool.Start(ctx)
	defer pool.Stop(ctx)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskReady, status, "orphaned running task must be reset to ready")

	ready, err := svc.Stores().PopReady(ctx, job.ID, 10)
	require.NoError(t, err)
	assert.Contains(t, ready, task.ID, "orphaned task must be re-queued onto the ready list")

	dead, err := wreg.GetDeadWorkers(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, dead, "the stale registry entry must be cleared, not merely left for later dead-worker cleanup")
}
