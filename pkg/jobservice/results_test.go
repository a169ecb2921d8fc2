package jobservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
)

func resultsHarness(t *testing.T) (*Service, model.Job) {
	t.Helper()
	svc := New(memory.New())
	ctx := context.Background()

	job := model.Job{
		ID:              "job-1",
		TotalInterviews: 1,
		InterviewIDs:    []string{"iv-1"},
		RetryPolicy:     model.DefaultRetryPolicyTable(),
		Questions: map[string]model.Question{
			"q1": {ID: "q1", Name: "q1"},
			"q2": {ID: "q2", Name: "q2"},
		},
	}
	require.NoError(t, svc.Stores().PutJob(ctx, job))

	q1 := model.Task{ID: "t-q1", JobID: job.ID, InterviewID: "iv-1", QuestionName: "q1", Dependents: []string{"t-q2"}}
	q2 := model.Task{ID: "t-q2", JobID: job.ID, InterviewID: "iv-1", QuestionName: "q2", DependsOn: []string{"t-q1"}}
	require.NoError(t, svc.Stores().PutTasks(ctx, job.ID, []model.Task{q1, q2}))
	require.NoError(t, svc.Stores().InitTaskState(ctx, q1.ID, model.NewTaskState(model.TaskReady, 0)))
	require.NoError(t, svc.Stores().InitTaskState(ctx, q2.ID, model.NewTaskState(model.TaskPending, 1)))

	iv := model.Interview{ID: "iv-1", JobID: job.ID, ScenarioID: "sc1", AgentID: "ag1", ModelID: "m1", TotalTasks: 2, TaskIDs: []string{q1.ID, q2.ID}}
	require.NoError(t, svc.Stores().PutInterviews(ctx, []model.Interview{iv}))

	return svc, job
}

func TestResults_OnlyIncludesFinalizedInterviews(t *testing.T) {
	svc, job := resultsHarness(t)
	ctx := context.Background()

	results, err := svc.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, results.Results, "a still-running interview contributes no result")

	q1, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q1")
	q2, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q2")
	require.NoError(t, svc.OnTaskCompleted(ctx, job, q1, model.Answer{JobID: job.ID, InterviewID: "iv-1", QuestionName: "q1", Value: "a1"}))
	require.NoError(t, svc.OnTaskCompleted(ctx, job, q2, model.Answer{JobID: job.ID, InterviewID: "iv-1", QuestionName: "q2", Value: "a2"}))

	results, err = svc.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, results.Results, 1)

	r := results.Results[0]
	assert.Equal(t, "iv-1", r.InterviewID)
	assert.Equal(t, "sc1", r.ScenarioID)
	assert.Equal(t, "a1", r.Answers["q1"])
	assert.Equal(t, "a2", r.Answers["q2"])
	assert.NotEmpty(t, r.InterviewHash)
}

func TestResults_MissingAnswerIsNull(t *testing.T) {
	svc, job := resultsHarness(t)
	ctx := context.Background()

	q1, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q1")
	q2, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q2")
	require.NoError(t, svc.OnTaskSkipped(ctx, job, q1, "skipped"))
	require.NoError(t, svc.OnTaskCompleted(ctx, job, q2, model.Answer{JobID: job.ID, InterviewID: "iv-1", QuestionName: "q2", Value: "a2"}))

	results, err := svc.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Nil(t, results.Results[0].Answers["q1"])
}

func TestProgress_TracksTaskCountsAcrossLifecycle(t *testing.T) {
	svc, job := resultsHarness(t)
	ctx := context.Background()

	progress, err := svc.Progress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalTasks)
	assert.Equal(t, 1, progress.ReadyTasks)
	assert.Equal(t, 1, progress.PendingTasks)
	assert.Equal(t, 1, progress.RunningInterviews)

	q1, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q1")
	require.NoError(t, svc.OnTaskCompleted(ctx, job, q1, model.Answer{JobID: job.ID, InterviewID: "iv-1", QuestionName: "q1", Value: "a1"}))

	progress, err = svc.Progress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.CompletedTasks)
}

func TestStatus_ReflectsJobState(t *testing.T) {
	svc, job := resultsHarness(t)
	ctx := context.Background()

	status, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Running)

	require.NoError(t, svc.Cancel(ctx, job.ID))
	status, err = svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Cancelled)
}

func TestErrors_ListsFailedTasksWithLastError(t *testing.T) {
	svc, job := resultsHarness(t)
	ctx := context.Background()

	q1, _, _ := svc.Stores().GetTask(ctx, job.ID, "iv-1", "t-q1")
	require.NoError(t, svc.OnTaskFailed(ctx, job, q1, model.ErrorNoQueue, "no queue for service"))

	errs, err := svc.Errors(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "t-q1", errs[0].TaskID)
	assert.Equal(t, model.ErrorNoQueue, errs[0].ErrorKind)
	assert.Equal(t, "no queue for service", errs[0].ErrorMessage)
}
