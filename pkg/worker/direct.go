package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// DirectRunner is the direct-answer fast path: tasks with
// execution_type != LLM bypass rendering and the queue entirely.
// It pulls them straight off the ready set and invokes the callable
// registered on the job's DirectAnswerRegistry, since those callables
// live client-side and aren't serializable across nodes.
type DirectRunner struct {
	svc       *jobservice.Service
	batchSize int
}

// NewDirectRunner constructs a DirectRunner popping up to batchSize
// ready task ids per poll.
func NewDirectRunner(svc *jobservice.Service, batchSize int) *DirectRunner {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &DirectRunner{svc: svc, batchSize: batchSize}
}

// RunBatch pops up to batchSize ready tasks for jobID, executing every
// non-LLM one found and leaving any LLM task it happens to see back on
// the ready set (the render worker owns those; a shared ready set means
// both consumers may occasionally see each other's work). Returns the
// count of direct-answer tasks it executed.
func (r *DirectRunner) RunBatch(ctx context.Context, jobID string) (int, error) {
	stores := r.svc.Stores()

	job, ok, err := stores.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: job %s", jobservice.ErrNotFound, jobID)
	}

	taskIDs, err := stores.PopReady(ctx, jobID, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(taskIDs) == 0 {
		return 0, nil
	}

	locations, err := stores.GetTaskLocations(ctx, taskIDs)
	if err != nil {
		return 0, err
	}

	registry := r.svc.DirectAnswers(jobID)
	executed := 0
	for _, id := range taskIDs {
		loc, ok := locations[id]
		if !ok {
			continue
		}
		task, ok, err := stores.GetTask(ctx, loc.JobID, loc.InterviewID, id)
		if err != nil || !ok {
			continue
		}
		if task.ExecutionType == model.ExecutionLLM {
			// Not ours; hand it back for the render worker.
			if err := stores.AddReady(ctx, jobID, id); err != nil {
				return executed, err
			}
			continue
		}

		fn, ok := registry.Pop(id)
		if !ok {
			// No callable registered for a direct-answer task is itself
			// a terminal failure: nothing will ever produce an answer.
			if err := r.svc.OnTaskFailed(ctx, job, task, model.ErrorDirectAnswer, "no direct-answer callable registered"); err != nil {
				return executed, err
			}
			continue
		}

		if err := stores.SetTaskStatus(ctx, id, model.TaskRunning); err != nil {
			slog.Warn("failed to mark direct-answer task running", "task_id", id, "error", err)
		}

		answerVal, comment, err := fn(ctx)
		if err != nil {
			if ferr := r.svc.OnTaskFailed(ctx, job, task, model.ErrorDirectAnswer, err.Error()); ferr != nil {
				return executed, ferr
			}
			executed++
			continue
		}

		answer := model.Answer{
			JobID:        task.JobID,
			InterviewID:  task.InterviewID,
			QuestionName: task.QuestionName,
			Value:        answerVal,
			Comment:      comment,
			ModelID:      task.ModelID,
		}
		if err := r.svc.OnTaskCompleted(ctx, job, task, answer); err != nil {
			return executed, err
		}
		executed++
	}
	return executed, nil
}

// Run polls RunBatch on interval until ctx is cancelled.
func (r *DirectRunner) Run(ctx context.Context, jobID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunBatch(ctx, jobID); err != nil {
				slog.Error("direct-answer runner batch failed", "job_id", jobID, "error", err)
			}
		}
	}
}
