package jobservice

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/dag"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
	"github.com/google/uuid"
)

// SubmitRequest bundles the inputs to Submit.
type SubmitRequest struct {
	UserID string

	Survey           model.Survey
	QuestionIndexDAG model.QuestionIndexDAG
	RuleIndices      []int // question indices carrying a user-defined routing rule

	Scenarios []model.Scenario
	Agents    []model.Agent
	Models    []model.ModelSpec

	Iterations      int
	RetryPolicy     model.RetryPolicyTable
	StopOnException bool
	Cache           bool
}

const taskWriteChunk = 1000

// Submit decomposes a survey into interviews and tasks. Each category
// of data is written with one batch call, except task definitions,
// which are written in chunks of 1000, and offloaded blobs, which are
// written one PutBlob call each.
func (svc *Service) Submit(ctx context.Context, req SubmitRequest) (model.Job, error) {
	if req.Iterations <= 0 {
		return model.Job{}, fmt.Errorf("%w: iterations must be positive", ErrInvalidInput)
	}
	if len(req.Scenarios) == 0 || len(req.Agents) == 0 || len(req.Models) == 0 {
		return model.Job{}, fmt.Errorf("%w: at least one scenario, agent, and model are required", ErrInvalidInput)
	}

	nameDAG, err := dag.Extract(&req.Survey, req.QuestionIndexDAG, req.RuleIndices)
	if err != nil {
		return model.Job{}, err
	}

	jobID := uuid.NewString()
	scenarios, agents, models, questions := assignIDs(req.Scenarios, req.Agents, req.Models, req.Survey.Questions)

	scenarios, blobWrites, err := offloadFileStoreFields(jobID, scenarios)
	if err != nil {
		return model.Job{}, err
	}
	if len(blobWrites) > 0 {
		if b := svc.storage.Blob(); b != nil {
			for key, w := range blobWrites {
				if err := b.PutBlob(ctx, key, w.data, w.metadata); err != nil {
					return model.Job{}, fmt.Errorf("offload blob %s: %w", key, err)
				}
			}
		}
	}

	retryPolicy := req.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = model.DefaultRetryPolicyTable()
	}

	interviews, tasks, taskStates, readyTaskIDs := expandInterviews(jobID, req, scenarios, agents, models, nameDAG)

	job := model.Job{
		ID:              jobID,
		UserID:          req.UserID,
		CreatedAt:       time.Now(),
		DAG:             nameDAG,
		Scenarios:       toByID(scenarios, func(s model.Scenario) string { return s.ID }),
		Agents:          toByID(agents, func(a model.Agent) string { return a.ID }),
		Models:          toByID(models, func(m model.ModelSpec) string { return m.ID }),
		Questions:       toByID(questions, func(q model.Question) string { return q.ID }),
		RetryPolicy:     retryPolicy,
		Iterations:      req.Iterations,
		StopOnException: req.StopOnException,
		Cache:           req.Cache,
		TotalInterviews: len(interviews),
	}
	for _, iv := range interviews {
		job.InterviewIDs = append(job.InterviewIDs, iv.ID)
	}

	if err := svc.store.PutJob(ctx, job); err != nil {
		return model.Job{}, err
	}
	if err := svc.store.PutJobResources(ctx, job); err != nil {
		return model.Job{}, err
	}
	if err := svc.store.PutSurvey(ctx, jobID, req.Survey); err != nil {
		return model.Job{}, err
	}
	if err := svc.store.PutInterviews(ctx, interviews); err != nil {
		return model.Job{}, err
	}
	locations := make(map[string]model.TaskLocation, len(tasks))
	for i := 0; i < len(tasks); i += taskWriteChunk {
		end := min(i+taskWriteChunk, len(tasks))
		if err := svc.store.PutTasks(ctx, jobID, tasks[i:end]); err != nil {
			return model.Job{}, err
		}
	}
	for _, t := range tasks {
		locations[t.ID] = model.TaskLocation{JobID: jobID, InterviewID: t.InterviewID}
	}
	if err := svc.store.BatchSetTaskLocations(ctx, locations); err != nil {
		return model.Job{}, err
	}
	if err := svc.store.InitTaskStates(ctx, taskStates); err != nil {
		return model.Job{}, err
	}
	if len(readyTaskIDs) > 0 {
		if err := svc.store.AddReadyBatch(ctx, jobID, readyTaskIDs); err != nil {
			return model.Job{}, err
		}
	}

	return job, nil
}

func toByID[T any](items []T, idOf func(T) string) map[string]T {
	out := make(map[string]T, len(items))
	for _, it := range items {
		out[idOf(it)] = it
	}
	return out
}

// assignIDs fills in stable ids where missing. Real callers typically
// already supply ids; this only backfills for ad-hoc submissions.
func assignIDs(scenarios []model.Scenario, agents []model.Agent, models []model.ModelSpec, questions []model.Question) ([]model.Scenario, []model.Agent, []model.ModelSpec, []model.Question) {
	for i := range scenarios {
		if scenarios[i].ID == "" {
			scenarios[i].ID = uuid.NewString()
		}
	}
	for i := range agents {
		if agents[i].ID == "" {
			agents[i].ID = uuid.NewString()
		}
	}
	for i := range models {
		if models[i].ID == "" {
			models[i].ID = uuid.NewString()
		}
	}
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
	}
	return scenarios, agents, models, questions
}

type blobWrite struct {
	data     []byte
	metadata map[string]string
}

// offloadFileStoreFields moves any FileStore-shaped scenario field into
// blob storage under blob:{job}:{scenario}:{field}, replacing it inline
// with a sentinel + blob reference.
func offloadFileStoreFields(jobID string, scenarios []model.Scenario) ([]model.Scenario, map[string]blobWrite, error) {
	writes := make(map[string]blobWrite)
	out := make([]model.Scenario, len(scenarios))
	for i, sc := range scenarios {
		fields := make(map[string]any, len(sc.Fields))
		for field, v := range sc.Fields {
			if fs, ok := model.IsFileStoreShape(v); ok {
				b64, _ := fs["base64_string"].(string)
				mime, _ := fs["mime_type"].(string)
				suffix, _ := fs["suffix"].(string)
				key := storage.Keys.Blob(jobID, sc.ID, field)
				writes[key] = blobWrite{data: []byte(b64), metadata: map[string]string{"mime_type": mime, "suffix": suffix}}
				fields[field] = model.BlobRef{Sentinel: "blob_ref", Key: key, MimeType: mime, Suffix: suffix}
				continue
			}
			fields[field] = v
		}
		out[i] = model.Scenario{ID: sc.ID, Fields: fields}
	}
	return out, writes, nil
}

// expandInterviews enumerates the scenario x agent x model cross
// product repeated n times, creates one task per question per
// interview, projects the DAG into task-id edges, and detects each
// task's execution type.
func expandInterviews(jobID string, req SubmitRequest, scenarios []model.Scenario, agents []model.Agent, models []model.ModelSpec, nameDAG model.QuestionNameDAG) ([]model.Interview, []model.Task, map[string]model.TaskState, []string) {
	var interviews []model.Interview
	var tasks []model.Task
	states := make(map[string]model.TaskState)
	var ready []string

	for _, sc := range scenarios {
		for _, ag := range agents {
			for _, md := range models {
				for iter := 0; iter < req.Iterations; iter++ {
					iv := model.Interview{
						ID:         uuid.NewString(),
						JobID:      jobID,
						ScenarioID: sc.ID,
						AgentID:    ag.ID,
						ModelID:    md.ID,
						Iteration:  iter,
						TotalTasks: len(req.Survey.Questions),
					}
					iv.RandomizedOptions = randomizePermutations(req.Survey)

					taskIDByQuestion := make(map[string]string, len(req.Survey.Questions))
					for _, q := range req.Survey.Questions {
						taskIDByQuestion[q.Name] = uuid.NewString()
					}
					dependsOn, dependents := dagProjectLocal(nameDAG, taskIDByQuestion)

					for _, q := range req.Survey.Questions {
						taskID := taskIDByQuestion[q.Name]
						deps := dependsOn[taskID]
						execType := detectExecutionType(q, ag)
						t := model.Task{
							ID:            taskID,
							JobID:         jobID,
							InterviewID:   iv.ID,
							ScenarioID:    sc.ID,
							AgentID:       ag.ID,
							ModelID:       md.ID,
							QuestionID:    q.ID,
							QuestionName:  q.Name,
							QuestionIdx:   q.Index,
							Iteration:     iter,
							DependsOn:     deps,
							Dependents:    dependents[taskID],
							ExecutionType: execType,
						}
						tasks = append(tasks, t)
						iv.TaskIDs = append(iv.TaskIDs, taskID)

						status := model.TaskPending
						if len(deps) == 0 {
							status = model.TaskReady
							ready = append(ready, taskID)
						}
						states[taskID] = model.NewTaskState(status, len(deps))
					}
					interviews = append(interviews, iv)
				}
			}
		}
	}
	return interviews, tasks, states, ready
}

// detectExecutionType picks a task's execution type: FUNCTIONAL if
// the question itself exposes a direct-answer capability, AGENT_DIRECT
// if only the agent does, otherwise LLM.
func detectExecutionType(q model.Question, agent model.Agent) model.ExecutionType {
	if q.DirectAnswer {
		return model.ExecutionFunctional
	}
	if agent.DirectAnswer {
		return model.ExecutionAgentDirect
	}
	return model.ExecutionLLM
}

func dagProjectLocal(nameDAG model.QuestionNameDAG, taskIDByQuestion map[string]string) (map[string][]string, map[string][]string) {
	return dag.ProjectToTasks(nameDAG, taskIDByQuestion)
}

// randomizePermutations computes, for every question named in
// survey.QuestionsToRandomize, an independent random permutation of
// that question's option list. Only plain list options with more than
// one entry are permuted; questions whose
// options are a templated {"from": ..., "add": ...} dict or a
// single-entry list are left for templates.go's normal resolution to
// handle, matching the original's _generate_question_permutations,
// which only samples when question_options is a list of length > 1.
// math/rand's package-level functions draw from an auto-seeded,
// concurrency-safe global source, so calling this once per interview
// naturally gives each interview its own permutation.
func randomizePermutations(survey model.Survey) map[string][]any {
	if len(survey.QuestionsToRandomize) == 0 {
		return nil
	}
	toRandomize := make(map[string]bool, len(survey.QuestionsToRandomize))
	for _, name := range survey.QuestionsToRandomize {
		toRandomize[name] = true
	}

	var out map[string][]any
	for _, q := range survey.Questions {
		if !toRandomize[q.Name] {
			continue
		}
		options, ok := q.QuestionOptions.([]any)
		if !ok || len(options) <= 1 {
			continue
		}
		permuted := make([]any, len(options))
		copy(permuted, options)
		rand.Shuffle(len(permuted), func(i, j int) {
			permuted[i], permuted[j] = permuted[j], permuted[i]
		})
		if out == nil {
			out = make(map[string][]any, len(survey.QuestionsToRandomize))
		}
		out[q.Name] = permuted
	}
	return out
}
