// Package jobservice is the orchestrator: job submission, DAG
// extraction, task creation, skip-logic evaluation, completion
// propagation, result assembly, and recovery.
package jobservice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Service is the Job Service: the orchestrator that owns jobs,
// interviews, tasks, and answers, mutated only through this API.
type Service struct {
	storage storage.Storage
	store   *Stores

	directMu      sync.Mutex
	directAnswers map[string]*DirectAnswerRegistry
}

// New constructs a Service backed by the given Storage Protocol
// implementation.
func New(st storage.Storage) *Service {
	return &Service{
		storage:       st,
		store:         NewStores(st),
		directAnswers: make(map[string]*DirectAnswerRegistry),
	}
}

// Stores exposes the typed accessor layer for collaborating components
// (render, coordinator, worker) that need direct read access to task
// and interview state without routing every read through the Service.
func (svc *Service) Stores() *Stores { return svc.store }

// DirectAnswers returns (creating if necessary) the direct-answer
// registry for a job. The registry lives on the submitting client
// because callables aren't serializable.
func (svc *Service) DirectAnswers(jobID string) *DirectAnswerRegistry {
	svc.directMu.Lock()
	defer svc.directMu.Unlock()
	if r, ok := svc.directAnswers[jobID]; ok {
		return r
	}
	r := NewDirectAnswerRegistry()
	svc.directAnswers[jobID] = r
	return r
}

// OnTaskCompleted records a task's answer and propagates the
// completion through the dependency graph.
func (svc *Service) OnTaskCompleted(ctx context.Context, job model.Job, task model.Task, answer model.Answer) error {
	if err := svc.store.PutAnswer(ctx, answer); err != nil {
		return err
	}
	if err := svc.store.SetTaskStatus(ctx, task.ID, model.TaskCompleted); err != nil {
		return err
	}
	if err := svc.satisfyDependents(ctx, job, task.Dependents); err != nil {
		return err
	}
	if _, err := svc.store.IncrementInterviewCounter(ctx, task.InterviewID, "completed"); err != nil {
		return err
	}
	return svc.finalizeInterviewIfTerminal(ctx, job, task.InterviewID)
}

// OnTaskSkipped mirrors OnTaskCompleted but increments "skipped" and
// writes a null-valued answer so results assembly still has an entry
// for the question name.
func (svc *Service) OnTaskSkipped(ctx context.Context, job model.Job, task model.Task, reason string) error {
	answer := model.Answer{
		JobID:        task.JobID,
		InterviewID:  task.InterviewID,
		QuestionName: task.QuestionName,
		Value:        nil,
		Comment:      reason,
		ModelID:      task.ModelID,
	}
	if err := svc.store.PutAnswer(ctx, answer); err != nil {
		return err
	}
	if err := svc.store.SetTaskStatus(ctx, task.ID, model.TaskSkipped); err != nil {
		return err
	}
	if err := svc.satisfyDependents(ctx, job, task.Dependents); err != nil {
		return err
	}
	if _, err := svc.store.IncrementInterviewCounter(ctx, task.InterviewID, "skipped"); err != nil {
		return err
	}
	return svc.finalizeInterviewIfTerminal(ctx, job, task.InterviewID)
}

// satisfyDependents atomically decrements every dependent's unmet_deps
// and promotes it to READY exactly once it reaches zero.
func (svc *Service) satisfyDependents(ctx context.Context, job model.Job, dependents []string) error {
	for _, depID := range dependents {
		remaining, err := svc.store.DecrementUnmetDeps(ctx, depID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := svc.store.SetTaskStatus(ctx, depID, model.TaskReady); err != nil {
				return err
			}
			if err := svc.store.AddReady(ctx, job.ID, depID); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnTaskFailed retries a failed task if its error kind's policy
// allows, or marks it FAILED and blocks its dependents.
func (svc *Service) OnTaskFailed(ctx context.Context, job model.Job, task model.Task, kind model.ErrorKind, message string) error {
	if err := svc.store.SetLastError(ctx, task.ID, model.TaskLastError{Kind: kind, Message: message}); err != nil {
		return err
	}

	policy := job.RetryPolicy.Lookup(kind)
	if job.StopOnException {
		if err := svc.failTerminally(ctx, job, task); err != nil {
			return err
		}
		if err := svc.store.SetJobState(ctx, job.ID, model.JobCancelled); err != nil {
			return err
		}
		return &model.TaskExecutionError{
			TaskID:       task.ID,
			JobID:        job.ID,
			InterviewID:  task.InterviewID,
			ErrorKind:    kind,
			ErrorMessage: message,
		}
	}

	attempts, err := svc.store.RecordAttempt(ctx, task.ID, kind)
	if err != nil {
		return err
	}

	if policy.Retryable && attempts < policy.MaxAttempts {
		if err := svc.store.SetTaskStatus(ctx, task.ID, model.TaskReady); err != nil {
			return err
		}
		return svc.store.AddReady(ctx, job.ID, task.ID)
	}

	return svc.failTerminally(ctx, job, task)
}

func (svc *Service) failTerminally(ctx context.Context, job model.Job, task model.Task) error {
	if err := svc.store.SetTaskStatus(ctx, task.ID, model.TaskFailed); err != nil {
		return err
	}
	blocked, err := svc.propagateFailure(ctx, job.ID, task.InterviewID, task.Dependents)
	if err != nil {
		return err
	}
	if _, err := svc.store.IncrementInterviewCounter(ctx, task.InterviewID, "failed"); err != nil {
		return err
	}
	for i := 0; i < blocked; i++ {
		if _, err := svc.store.IncrementInterviewCounter(ctx, task.InterviewID, "blocked"); err != nil {
			return err
		}
	}
	return svc.finalizeInterviewIfTerminal(ctx, job, task.InterviewID)
}

// propagateFailure marks every transitive dependent BLOCKED with error
// kind upstream_failure, walking the dependents edges reachable from a
// task's own definition (all depends_on ids live within the same
// interview). Returns the count of tasks newly marked BLOCKED, for the
// interview's blocked counter.
func (svc *Service) propagateFailure(ctx context.Context, jobID, interviewID string, dependents []string) (int, error) {
	queue := append([]string{}, dependents...)
	seen := make(map[string]bool)
	blocked := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		status, err := svc.store.GetTaskStatus(ctx, id)
		if err != nil {
			return blocked, err
		}
		if status.Terminal() {
			continue
		}
		if err := svc.store.SetTaskStatus(ctx, id, model.TaskBlocked); err != nil {
			return blocked, err
		}
		if err := svc.store.SetLastError(ctx, id, model.TaskLastError{Kind: model.ErrorUpstreamFailure, Message: "upstream task failed"}); err != nil {
			return blocked, err
		}
		blocked++

		t, ok, err := svc.store.GetTask(ctx, jobID, interviewID, id)
		if err != nil {
			return blocked, err
		}
		if ok {
			queue = append(queue, t.Dependents...)
		}
	}
	return blocked, nil
}

// finalizeInterviewIfTerminal recomputes interview state and, if
// terminal, credits it to the job exactly once and recomputes job
// state (set insertion is the exactly-once serialization point).
func (svc *Service) finalizeInterviewIfTerminal(ctx context.Context, job model.Job, interviewID string) error {
	counters, err := svc.store.GetInterviewCounters(ctx, interviewID)
	if err != nil {
		return err
	}
	interviews, err := svc.store.GetInterviews(ctx, job.ID, []string{interviewID})
	if err != nil {
		return err
	}
	iv, ok := interviews[interviewID]
	if !ok {
		return nil
	}
	if !counters.Finalized(iv.TotalTasks) {
		return nil
	}
	state := counters.DeriveState(iv.TotalTasks)
	if err := svc.store.SetInterviewState(ctx, interviewID, state); err != nil {
		return err
	}

	credited, err := svc.store.CreditInterview(ctx, job.ID, interviewID)
	if err != nil || !credited {
		return err
	}

	if state == model.InterviewCompleted {
		_, err = svc.store.IncrementJobCounter(ctx, job.ID, "completed_interviews")
	} else {
		_, err = svc.store.IncrementJobCounter(ctx, job.ID, "failed_interviews")
	}
	if err != nil {
		return err
	}

	jobCounters, err := svc.store.GetJobCounters(ctx, job.ID)
	if err != nil {
		return err
	}
	if jobCounters.CompletedInterviews+jobCounters.FailedInterviews >= job.TotalInterviews {
		jobState := model.JobCompleted
		if jobCounters.FailedInterviews > 0 {
			jobState = model.JobCompletedWithFailures
		}
		if err := svc.store.SetJobState(ctx, job.ID, jobState); err != nil {
			return err
		}
		slog.Info("job finalized", "job_id", job.ID, "state", jobState)
	}
	return nil
}

// Cancel sets the job state to CANCELLED and does nothing else. The
// job's tasks are not removed from its ready set or from coordinator
// queues, and the render, direct-answer and execution paths do not check
// the job state, so tasks already queued are still assigned and run.
func (svc *Service) Cancel(ctx context.Context, jobID string) error {
	return svc.store.SetJobState(ctx, jobID, model.JobCancelled)
}
