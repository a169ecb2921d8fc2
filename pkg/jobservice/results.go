package jobservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// Results assembles one Result per completed interview. Interview
// definitions and interview counters are each read in one batch;
// answers are read with one batch per completed interview, not in a
// single batch for the whole job.
func (svc *Service) Results(ctx context.Context, jobID string) (model.Results, error) {
	job, ok, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Results{}, err
	}
	if !ok {
		return model.Results{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	// Round 1: all interview definitions.
	interviews, err := svc.store.GetInterviews(ctx, jobID, job.InterviewIDs)
	if err != nil {
		return model.Results{}, err
	}

	// Round 2 (agents/scenarios/models) is already resident on Job; no
	// additional round-trip needed since Submit persisted them inline.

	// Round 3: all interview states, one batch read.
	states, err := svc.store.GetInterviewCountersBatch(ctx, job.InterviewIDs)
	if err != nil {
		return model.Results{}, err
	}

	var out []model.Result
	for id, iv := range interviews {
		counters := states[id]
		if counters.DeriveState(iv.TotalTasks) == model.InterviewRunning {
			continue
		}

		// Round 4: all answers for this completed interview, MGET'd by
		// known question names.
		qnames := make([]string, 0, len(job.Questions))
		for _, q := range job.Questions {
			qnames = append(qnames, q.Name)
		}
		answers, err := svc.store.GetAnswersBatch(ctx, jobID, id, qnames)
		if err != nil {
			return model.Results{}, err
		}

		out = append(out, buildResult(iv, answers, job.Questions))
	}

	return model.Results{JobID: jobID, Results: out}, nil
}

func buildResult(iv model.Interview, answers map[string]model.Answer, questions map[string]model.Question) model.Result {
	r := model.Result{
		InterviewID:   iv.ID,
		InterviewHash: interviewHash(iv),
		ScenarioID:    iv.ScenarioID,
		AgentID:       iv.AgentID,
		ModelID:       iv.ModelID,
		Iteration:     iv.Iteration,

		Answers:         map[string]any{},
		Prompts:         map[string]string{},
		RawResponses:    map[string]any{},
		InputTokens:     map[string]int{},
		OutputTokens:    map[string]int{},
		Prices:          map[string]float64{},
		CacheInfo:       map[string]bool{},
		Validated:       map[string]bool{},
		Comments:        map[string]string{},
		GeneratedTokens: map[string]string{},
		Reasoning:       map[string]string{},
	}
	for _, q := range questions {
		a, ok := answers[q.Name]
		if !ok {
			r.Answers[q.Name] = nil
			continue
		}
		r.Answers[q.Name] = a.Value
		r.Prompts[q.Name] = a.SystemPrompt + "\n---\n" + a.UserPrompt
		r.RawResponses[q.Name] = a.RawResponse
		r.InputTokens[q.Name] = a.InputTokens
		r.OutputTokens[q.Name] = a.OutputTokens
		r.Prices[q.Name] = a.InputPricePerMillion + a.OutputPricePerMillion
		r.CacheInfo[q.Name] = a.Cached
		r.Validated[q.Name] = a.Validated
		r.Comments[q.Name] = a.Comment
		r.GeneratedTokens[q.Name] = a.GeneratedTokens
		r.Reasoning[q.Name] = a.ReasoningSummary
	}
	return r
}

// interviewHash is a deterministic hash over (agent, scenario, model,
// iteration).
func interviewHash(iv model.Interview) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", iv.AgentID, iv.ScenarioID, iv.ModelID, iv.Iteration)
	return hex.EncodeToString(h.Sum(nil))
}

// Progress reports the job's interview and task counts by state.
func (svc *Service) Progress(ctx context.Context, jobID string) (model.JobProgress, error) {
	job, ok, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return model.JobProgress{}, err
	}
	if !ok {
		return model.JobProgress{}, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	interviews, err := svc.store.GetInterviews(ctx, jobID, job.InterviewIDs)
	if err != nil {
		return model.JobProgress{}, err
	}
	counters, err := svc.store.GetInterviewCountersBatch(ctx, job.InterviewIDs)
	if err != nil {
		return model.JobProgress{}, err
	}

	p := model.JobProgress{TotalInterviews: job.TotalInterviews}
	var allTaskIDs []string
	for _, ivID := range job.InterviewIDs {
		iv, ok := interviews[ivID]
		if !ok {
			continue
		}
		p.TotalTasks += iv.TotalTasks
		allTaskIDs = append(allTaskIDs, iv.TaskIDs...)

		switch counters[ivID].DeriveState(iv.TotalTasks) {
		case model.InterviewCompleted:
			p.CompletedInterviews++
		case model.InterviewCompletedWithFailures:
			p.FailedInterviews++
		default:
			p.RunningInterviews++
		}
	}

	statuses, err := svc.store.GetTaskStatuses(ctx, allTaskIDs)
	if err != nil {
		return model.JobProgress{}, err
	}
	for _, status := range statuses {
		switch status {
		case model.TaskCompleted:
			p.CompletedTasks++
		case model.TaskSkipped:
			p.SkippedTasks++
		case model.TaskFailed:
			p.FailedTasks++
		case model.TaskBlocked:
			p.BlockedTasks++
		case model.TaskReady:
			p.ReadyTasks++
		case model.TaskRendering, model.TaskQueued, model.TaskRunning:
			p.RunningTasks++
		default:
			p.PendingTasks++
		}
	}
	return p, nil
}

// Status reports the job's overall state.
func (svc *Service) Status(ctx context.Context, jobID string) (model.JobStatus, error) {
	counters, err := svc.store.GetJobCounters(ctx, jobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	status := model.JobStatus{}
	switch counters.State {
	case model.JobCompleted:
		status.Completed = 1
	case model.JobCompletedWithFailures:
		status.CompletedWithFailures = 1
	case model.JobCancelled:
		status.Cancelled = 1
	default:
		status.Running = 1
	}
	return status, nil
}

// Errors reports the job's failures: one record per FAILED task with
// its last error kind and message.
func (svc *Service) Errors(ctx context.Context, jobID string) ([]model.TaskError, error) {
	job, ok, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	interviews, err := svc.store.GetInterviews(ctx, jobID, job.InterviewIDs)
	if err != nil {
		return nil, err
	}
	var allTaskIDs []string
	interviewOf := make(map[string]string)
	for ivID, iv := range interviews {
		for _, taskID := range iv.TaskIDs {
			allTaskIDs = append(allTaskIDs, taskID)
			interviewOf[taskID] = ivID
		}
	}
	statuses, err := svc.store.GetTaskStatuses(ctx, allTaskIDs)
	if err != nil {
		return nil, err
	}

	var out []model.TaskError
	for _, taskID := range allTaskIDs {
		if statuses[taskID] != model.TaskFailed {
			continue
		}
		ivID := interviewOf[taskID]
		task, ok, err := svc.store.GetTask(ctx, jobID, ivID, taskID)
		if err != nil || !ok {
			continue
		}
		lastErr, _, _ := svc.store.GetLastError(ctx, taskID)
		attempts, _ := svc.store.GetAttempts(ctx, taskID, lastErr.Kind)
		out = append(out, model.TaskError{
			TaskID:       taskID,
			InterviewID:  ivID,
			QuestionName: task.QuestionName,
			ModelID:      task.ModelID,
			ErrorKind:    lastErr.Kind,
			ErrorMessage: lastErr.Message,
			Attempts:     attempts,
		})
	}
	return out, nil
}
