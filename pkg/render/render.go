// Package render implements the render worker: it pops ready tasks
// off a job's ready set, evaluates skip logic, and
// turns the survivors into model.RenderedTask descriptors the
// coordinator can route to a rate-limited queue.
package render

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/jobrunner/pkg/cachekey"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Worker renders one batch at a time for a single job. Callers
// typically run one Worker per job (or per small set of jobs) in a
// loop that calls RenderBatch until it returns an empty Rendered.
type Worker struct {
	svc      *jobservice.Service
	renderer jobservice.PromptRenderer
}

// NewWorker constructs a render Worker backed by svc's stores and the
// given prompt-rendering capability.
func NewWorker(svc *jobservice.Service, renderer jobservice.PromptRenderer) *Worker {
	return &Worker{svc: svc, renderer: renderer}
}

// Rendered is the outcome of one RenderBatch call: LLM tasks ready for
// the coordinator, and direct-answer task ids that bypass it entirely.
type Rendered struct {
	LLMTasks      []model.RenderedTask
	DirectTaskIDs []string
}

// estimatedTokenOverhead is added to the character-count heuristic to
// leave headroom for response tokens when reserving TPM budget ahead of
// the actual call.
const estimatedTokenOverhead = 500

// RenderBatch runs one render pass end to end: pop up to batchSize
// ready task ids, resolve their interview/job location, evaluate skip
// logic, render survivors' prompts, and move every task through
// RENDERING -> QUEUED (or off to OnTaskSkipped / back to the ready set
// for non-LLM tasks).
func (w *Worker) RenderBatch(ctx context.Context, jobID string, rules jobservice.RuleCollection, batchSize int) (Rendered, error) {
	stores := w.svc.Stores()

	job, ok, err := stores.GetJob(ctx, jobID)
	if err != nil {
		return Rendered{}, err
	}
	if !ok {
		return Rendered{}, fmt.Errorf("%w: job %s", jobservice.ErrNotFound, jobID)
	}

	taskIDs, err := stores.PopReady(ctx, jobID, batchSize)
	if err != nil {
		return Rendered{}, err
	}
	if len(taskIDs) == 0 {
		return Rendered{}, nil
	}

	locations, err := stores.GetTaskLocations(ctx, taskIDs)
	if err != nil {
		return Rendered{}, err
	}

	byInterview := make(map[string][]string)
	for _, id := range taskIDs {
		loc, ok := locations[id]
		if !ok {
			continue
		}
		byInterview[loc.InterviewID] = append(byInterview[loc.InterviewID], id)
	}

	interviewIDs := make([]string, 0, len(byInterview))
	for ivID := range byInterview {
		interviewIDs = append(interviewIDs, ivID)
	}
	interviews, err := stores.GetInterviews(ctx, jobID, interviewIDs)
	if err != nil {
		return Rendered{}, err
	}

	tasksByID := make(map[string]model.Task, len(taskIDs))
	for ivID, ids := range byInterview {
		fetched, err := stores.GetTasks(ctx, func(id string) string {
			return storage.Keys.Task(jobID, ivID, id)
		}, ids)
		if err != nil {
			return Rendered{}, err
		}
		for id, t := range fetched {
			tasksByID[id] = t
		}
	}

	survey, ok, err := stores.GetSurvey(ctx, jobID)
	if err != nil {
		return Rendered{}, err
	}
	if !ok {
		return Rendered{}, fmt.Errorf("%w: survey for job %s", jobservice.ErrNotFound, jobID)
	}

	questionIdx := make(map[string]int, len(survey.Questions))
	for _, q := range survey.Questions {
		questionIdx[q.Name] = q.Index
	}

	priorAnswers := make(map[string]map[string]any, len(byInterview))
	for ivID, ids := range byInterview {
		names := make(map[string]struct{})
		for _, id := range ids {
			t, ok := tasksByID[id]
			if !ok {
				continue
			}
			for _, dep := range transitiveDeps(job.DAG, t.QuestionName) {
				names[dep] = struct{}{}
			}
		}
		qnames := make([]string, 0, len(names))
		for n := range names {
			qnames = append(qnames, n)
		}
		answers, err := stores.GetAnswersBatch(ctx, jobID, ivID, qnames)
		if err != nil {
			return Rendered{}, err
		}
		values := make(map[string]any, len(answers))
		for name, a := range answers {
			values[name] = a.Value
		}
		priorAnswers[ivID] = values
	}

	cache := &jobservice.SkipCache{
		Survey:       &survey,
		Rules:        rules,
		QuestionIdx:  questionIdx,
		PriorAnswers: priorAnswers,
	}

	var renderList []model.Task
	var result Rendered

	for _, id := range taskIDs {
		task, ok := tasksByID[id]
		if !ok {
			continue
		}
		iv, ok := interviews[task.InterviewID]
		if !ok {
			continue
		}
		scenario := job.Scenarios[task.ScenarioID]
		agent := job.Agents[task.AgentID]

		combined := jobservice.CombineAnswers(priorAnswers[iv.ID], scenario.Fields, agent.Traits)
		skip := jobservice.EvaluateSkip(cache, iv.ID, task.QuestionName, combined)
		if skip.Skip {
			if err := w.svc.OnTaskSkipped(ctx, job, task, skip.Reason); err != nil {
				return Rendered{}, err
			}
			continue
		}

		if task.ExecutionType != model.ExecutionLLM {
			result.DirectTaskIDs = append(result.DirectTaskIDs, task.ID)
			if err := stores.AddReady(ctx, jobID, task.ID); err != nil {
				return Rendered{}, err
			}
			continue
		}

		renderList = append(renderList, task)
	}

	if len(renderList) == 0 {
		return result, nil
	}

	renderIDs := make([]string, len(renderList))
	for i, t := range renderList {
		renderIDs[i] = t.ID
	}
	if err := stores.BatchSetTaskStatus(ctx, renderIDs, model.TaskRendering); err != nil {
		return Rendered{}, err
	}

	var queuedIDs []string
	for _, task := range renderList {
		modelSpec := job.Models[task.ModelID]
		question := job.Questions[task.QuestionID]
		agent := job.Agents[task.AgentID]
		scenario := job.Scenarios[task.ScenarioID]

		// Resolve templated question options against this interview's
		// prior answers and scenario, letting a per-interview random
		// permutation override the resolved list.
		var randomized []any
		if iv, ok := interviews[task.InterviewID]; ok {
			randomized = iv.RandomizedOptions[task.QuestionName]
		}
		if question.QuestionOptions != nil || randomized != nil {
			question.QuestionOptions = jobservice.ResolveQuestionOptions(question.QuestionOptions, priorAnswers[task.InterviewID], scenario.Fields, randomized)
		}

		sysPrompt, userPrompt, files, err := w.renderer.Render(ctx, scenario, agent, modelSpec, question, priorAnswers[task.InterviewID])
		if err != nil {
			// A render-capability error is an ordinary unclassified
			// failure, not a direct-answer-callable failure: it goes
			// through the default retryable policy rather
			// than model.ErrorDirectAnswer's never-retry policy.
			if ferr := w.svc.OnTaskFailed(ctx, job, task, model.ErrorUnknown, err.Error()); ferr != nil {
				return Rendered{}, ferr
			}
			continue
		}

		key := cachekey.Compute(modelSpec.Name, modelSpec.Parameters, sysPrompt, userPrompt, task.Iteration)
		estimated := (len(sysPrompt)+len(userPrompt))/4 + estimatedTokenOverhead

		result.LLMTasks = append(result.LLMTasks, model.RenderedTask{
			Task:            task,
			SystemPrompt:    sysPrompt,
			UserPrompt:      userPrompt,
			FilesList:       files,
			CacheKey:        key,
			EstimatedTokens: estimated,
			Service:         modelSpec.Service,
			ModelName:       modelSpec.Name,
		})
		queuedIDs = append(queuedIDs, task.ID)
	}

	if len(queuedIDs) > 0 {
		if err := stores.BatchSetTaskStatus(ctx, queuedIDs, model.TaskQueued); err != nil {
			return Rendered{}, err
		}
	}

	return result, nil
}

// transitiveDeps returns every question name reachable from name by
// following the DAG's prerequisite edges, name itself excluded. Walking
// the question-name DAG directly (rather than task-id dependency edges
// scoped to one interview) gives the same closure with one shared
// structure for every interview in the batch.
func transitiveDeps(g model.QuestionNameDAG, name string) []string {
	seen := make(map[string]bool)
	var out []string
	var visit func(string)
	visit = func(n string) {
		for _, p := range g[n] {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			visit(p)
		}
	}
	visit(name)
	return out
}
