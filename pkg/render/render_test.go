package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/memory"
)

type stubRules struct{}

func (stubRules) NonDefaultRules() []int                             { return nil }
func (stubRules) SkipQuestionBeforeRunning(int, map[string]any) bool { return false }
func (stubRules) NextQuestion(idx int, _ map[string]any) jobservice.NextQuestionResult {
	return jobservice.NextQuestionResult{NextIndex: idx + 1}
}

type stubRenderer struct{ calls int }

func (r *stubRenderer) Render(_ context.Context, _ model.Scenario, _ model.Agent, _ model.ModelSpec, q model.Question, _ map[string]any) (string, string, []any, error) {
	r.calls++
	return "sys:" + q.Name, "user:" + q.Name, nil, nil
}

func submitSimpleJob(t *testing.T, svc *jobservice.Service) model.Job {
	t.Helper()
	survey := model.Survey{
		ID: "s1",
		Questions: []model.Question{
			{Name: "q1", Index: 0, Text: "first"},
			{Name: "q2", Index: 1, Text: "second"},
		},
	}
	job, err := svc.Submit(context.Background(), jobservice.SubmitRequest{
		UserID:     "u1",
		Survey:     survey,
		Scenarios:  []model.Scenario{{Fields: map[string]any{"x": 1}}},
		Agents:     []model.Agent{{Name: "a1"}},
		Models:     []model.ModelSpec{{Name: "gpt-4", Service: "openai"}},
		Iterations: 1,
	})
	require.NoError(t, err)
	return job
}

func TestRenderBatch_RendersReadyLLMTasks(t *testing.T) {
	st := memory.New()
	svc := jobservice.New(st)
	job := submitSimpleJob(t, svc)

	renderer := &stubRenderer{}
	w := NewWorker(svc, renderer)

	out, err := w.RenderBatch(context.Background(), job.ID, stubRules{}, 10)
	require.NoError(t, err)
	assert.Len(t, out.LLMTasks, 1, "only q1 has zero unmet deps at submit time")
	assert.Equal(t, "gpt-4", out.LLMTasks[0].ModelName)
	assert.NotEmpty(t, out.LLMTasks[0].CacheKey)
	assert.Equal(t, 1, renderer.calls)
}

func TestRenderBatch_EmptyReadySetReturnsNothing(t *testing.T) {
	st := memory.New()
	svc := jobservice.New(st)
	job := submitSimpleJob(t, svc)

	w := NewWorker(svc, &stubRenderer{})
	ctx := context.Background()

	_, err := w.RenderBatch(ctx, job.ID, stubRules{}, 10)
	require.NoError(t, err)

	out, err := w.RenderBatch(ctx, job.ID, stubRules{}, 10)
	require.NoError(t, err)
	assert.Empty(t, out.LLMTasks)
	assert.Empty(t, out.DirectTaskIDs)
}

func TestRenderBatch_DirectAnswerTaskBypassesRenderer(t *testing.T) {
	st := memory.New()
	svc := jobservice.New(st)

	survey := model.Survey{
		Questions: []model.Question{
			{Name: "q1", Index: 0, DirectAnswer: true},
		},
	}
	job, err := svc.Submit(context.Background(), jobservice.SubmitRequest{
		UserID:     "u1",
		Survey:     survey,
		Scenarios:  []model.Scenario{{Fields: map[string]any{}}},
		Agents:     []model.Agent{{Name: "a1"}},
		Models:     []model.ModelSpec{{Name: "gpt-4", Service: "openai"}},
		Iterations: 1,
	})
	require.NoError(t, err)

	renderer := &stubRenderer{}
	w := NewWorker(svc, renderer)

	out, err := w.RenderBatch(context.Background(), job.ID, stubRules{}, 10)
	require.NoError(t, err)
	assert.Empty(t, out.LLMTasks)
	assert.Len(t, out.DirectTaskIDs, 1)
	assert.Equal(t, 0, renderer.calls)
}

type capturingRenderer struct {
	lastQuestion model.Question
}

func (r *capturingRenderer) Render(_ context.Context, _ model.Scenario, _ model.Agent, _ model.ModelSpec, q model.Question, _ map[string]any) (string, string, []any, error) {
	r.lastQuestion = q
	return "sys", "user", nil, nil
}

func TestRenderBatch_ResolvesTemplatedQuestionOptions(t *testing.T) {
	st := memory.New()
	svc := jobservice.New(st)

	survey := model.Survey{
		Questions: []model.Question{
			{Name: "q1", Index: 0, QuestionOptions: []any{"{{ scenario.city }}", "elsewhere"}},
		},
	}
	job, err := svc.Submit(context.Background(), jobservice.SubmitRequest{
		UserID:     "u1",
		Survey:     survey,
		Scenarios:  []model.Scenario{{Fields: map[string]any{"city": "Paris"}}},
		Agents:     []model.Agent{{Name: "a1"}},
		Models:     []model.ModelSpec{{Name: "gpt-4", Service: "openai"}},
		Iterations: 1,
	})
	require.NoError(t, err)

	renderer := &capturingRenderer{}
	w := NewWorker(svc, renderer)

	out, err := w.RenderBatch(context.Background(), job.ID, stubRules{}, 10)
	require.NoError(t, err)
	require.Len(t, out.LLMTasks, 1)
	assert.Equal(t, []any{"Paris", "elsewhere"}, renderer.lastQuestion.QuestionOptions)
}
