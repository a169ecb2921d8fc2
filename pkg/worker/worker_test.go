package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/coordinator"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/queue"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
)

type staticKeys map[string]string

func (k staticKeys) Key(service string) string { return k[service] }

type fakeLLM struct {
	resp LLMResponse
	err  error
}

func (f *fakeLLM) GetResponse(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	return f.resp, f.err
}

func newHarness(t *testing.T) (*jobservice.Service, *coordinator.Coordinator, model.Job, model.Task) {
	t.Helper()
	st := memory.New()
	svc := jobservice.New(st)
	ctx := context.Background()

	job := model.Job{
		ID:              "job-1",
		Iterations:      1,
		TotalInterviews: 1,
		RetryPolicy:     model.DefaultRetryPolicyTable(),
		Models:          map[string]model.ModelSpec{"m1": {ID: "m1", Name: "gpt-4", Service: "openai"}},
		InterviewIDs:    []string{"iv-1"},
	}
	require.NoError(t, svc.Stores().PutJob(ctx, job))

	task := model.Task{
		ID:           "t-1",
		JobID:        "job-1",
		InterviewID:  "iv-1",
		ModelID:      "m1",
		QuestionName: "q1",
	}
	require.NoError(t, svc.Stores().PutTasks(ctx, job.ID, []model.Task{task}))
	require.NoError(t, svc.Stores().InitTaskState(ctx, task.ID, model.NewTaskState(model.TaskReady, 0)))

	iv := model.Interview{ID: "iv-1", JobID: job.ID, TotalTasks: 1, TaskIDs: []string{task.ID}}
	require.NoError(t, svc.Stores().PutInterviews(ctx, []model.Interview{iv}))

	reg := queue.NewRegistry(&queue.StaticKeyResolver{
		Services: map[string]bool{"openai": true},
		Limits:   map[string]queue.Limits{"openai": {RPM: 100, TPM: 100_000}},
	})
	coord := coordinator.New(reg, staticKeys{"openai": "sk-test"})

	return svc, coord, job, task
}

func TestWorker_ProcessCompletesTaskOnSuccess(t *testing.T) {
	svc, coord, _, task := newHarness(t)
	ctx := context.Background()

	rendered := model.RenderedTask{
		Task:            task,
		SystemPrompt:    "sys",
		UserPrompt:      "user",
		Service:         "openai",
		ModelName:       "gpt-4",
		EstimatedTokens: 50,
	}
	_, ok := coord.Enqueue(rendered)
	require.True(t, ok)

	a, ok := coord.TryAssign(time.Now())
	require.True(t, ok)

	llm := &fakeLLM{resp: LLMResponse{Answer: "42", InputTokens: 10, OutputTokens: 5}}
	w := New("w-1", coord, svc, llm, nil, 2*time.Second)
	w.process(ctx, a)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, status)

	answer, ok, err := svc.Stores().GetAnswer(ctx, task.JobID, task.InterviewID, task.QuestionName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", answer.Value)
}

func TestWorker_ProcessRetriesRetryableFailure(t *testing.T) {
	svc, coord, _, task := newHarness(t)
	ctx := context.Background()

	rendered := model.RenderedTask{Task: task, Service: "openai", ModelName: "gpt-4", EstimatedTokens: 50}
	coord.Enqueue(rendered)
	a, ok := coord.TryAssign(time.Now())
	require.True(t, ok)

	llm := &fakeLLM{err: errors.New("503 service unavailable")}
	w := New("w-1", coord, svc, llm, nil, 2*time.Second)
	w.process(ctx, a)

	status, err := svc.Stores().GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskReady, status)

	ids, err := svc.Stores().PopReady(ctx, task.JobID, 10)
	require.NoError(t, err)
	assert.Contains(t, ids, task.ID)
}

func TestClassify(t *testing.T) {
	cases := map[string]model.ErrorKind{
		"connection timeout":         model.ErrorNetworkTimeout,
		"429 too many requests":      model.ErrorRateLimit,
		"503 service unavailable":    model.ErrorServerError,
		"content policy violation":   model.ErrorContentPolicy,
		"400 bad request":            model.ErrorInvalidRequest,
		"something bizarre happened": model.ErrorUnknown,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(errors.New(msg)), msg)
	}
	assert.Equal(t, model.ErrorNetworkTimeout, Classify(context.DeadlineExceeded))
}
