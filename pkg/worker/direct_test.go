package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
)

func newDirectHarness(t *testing.T, execType model.ExecutionType) (*jobservice.Service, model.Task) {
	t.Helper()
	st := memory.New()
	svc := jobservice.New(st)
	ctx := context.Background()

	job := model.Job{ID: "job-1", TotalInterviews: 1, InterviewIDs: []string{"iv-1"}, RetryPolicy: model.DefaultRetryPolicyTable()}
	require.NoError(t, svc.Stores().PutJob(ctx, job))

	task := model.Task{ID: "t-1", JobID: "job-1", InterviewID: "iv-1", QuestionName: "q1", ExecutionType: execType}
	require.NoError(t, svc.Stores().PutTasks(ctx, job.ID, []model.Task{task}))
	require.NoError(t, svc.Stores().InitTaskState(ctx, task.ID, model.NewTaskState(model.TaskReady, 0)))
	require.NoError(t, svc.Stores().BatchSetTaskLocations(ctx, map[string]model.TaskLocation{task.ID: {JobID: job.ID, InterviewID: "iv-1"}}))
	require.NoError(t, svc.Stores().AddReady(ctx, job.ID, task.ID))

	iv := model.Interview{ID: "iv-1", JobID: job.ID, TotalTasks: 1, TaskIDs: []string{task.ID}}
	require.NoError(t, svc.Stores().PutInterviews(ctx, []model.Interview{iv}))

	return svc, task
}

func TestDirectRunner_ExecutesRegisteredCallable(t *testing.T) {
	svc, task := newDirectHarness(t, model.ExecutionFunctional)
	ctx := context.Background()

	svc.DirectAnswers(task.JobID).Register(task.ID, func(ctx context.Context) (any, string, error) {
		return "direct-answer", "computed locally", nil
	})

	r := NewDirectRunner(svc, 10)
	n, err := r.RunBatch(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, status)

	answer, ok, err := svc.Stores().GetAnswer(ctx, task.JobID, task.InterviewID, task.QuestionName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "direct-answer", answer.Value)
}

func TestDirectRunner_FailsWhenCallableErrors(t *testing.T) {
	svc, task := newDirectHarness(t, model.ExecutionAgentDirect)
	ctx := context.Background()

	svc.DirectAnswers(task.JobID).Register(task.ID, func(ctx context.Context) (any, string, error) {
		return nil, "", errors.New("boom")
	})

	r := NewDirectRunner(svc, 10)
	n, err := r.RunBatch(ctx, task.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, status)
}

func TestDirectRunner_FailsWhenNoCallableRegistered(t *testing.T) {
	svc, task := newDirectHarness(t, model.ExecutionFunctional)
	ctx := context.Background()

	r := NewDirectRunner(svc, 10)
	_, err := r.RunBatch(ctx, task.JobID)
	require.NoError(t, err)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, status)
}
