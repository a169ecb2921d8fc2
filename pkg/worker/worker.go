// Package worker implements the execution worker pool: each worker
// long-polls the coordinator for rendered tasks, invokes the external
// LLM capability, and reports completion back to
// the Job Service, with optional heartbeats to the Worker Registry when
// running distributed.
package worker

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/coordinator"
	"github.com/codeready-toolchain/jobrunner/pkg/jobservice"
	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/workerregistry"
)

// Status is a worker's lifecycle phase, for health reporting.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// Health is a point-in-time snapshot of one worker, for a pool-level
// health endpoint.
type Health struct {
	ID             string
	Status         Status
	CurrentTaskID  string
	CurrentJobID   string
	TasksProcessed int
	LastActivity   time.Time
}

// Worker is a single execution worker: one long-poll loop bound to one
// coordinator and one Job Service.
type Worker struct {
	id          string
	coord       *coordinator.Coordinator
	svc         *jobservice.Service
	llm         LLMClient
	registry    *workerregistry.Registry // nil in single-process, undistributed mode
	idleTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	heartbeat *workerregistry.HeartbeatManager

	mu             sync.RWMutex
	status         Status
	currentTaskID  string
	currentJobID   string
	tasksProcessed int
	lastActivity   time.Time
}

// New constructs a Worker with the given id, wired to coord/svc/llm.
// registry may be nil for single-node mode, in which case no heartbeat
// manager is started.
func New(id string, coord *coordinator.Coordinator, svc *jobservice.Service, llm LLMClient, registry *workerregistry.Registry, idleTimeout time.Duration) *Worker {
	return &Worker{
		id:           id,
		coord:        coord,
		svc:          svc,
		llm:          llm,
		registry:     registry,
		idleTimeout:  idleTimeout,
		stopCh:       make(chan struct{}),
		status:       StatusIdle,
		lastActivity: time.Now(),
	}
}

// Start launches the worker's run loop in a goroutine, registering with
// the Worker Registry and starting its heartbeat manager first if one
// is configured.
func (w *Worker) Start(ctx context.Context) {
	if w.registry != nil {
		if err := w.registry.Register(ctx, workerregistry.Record{WorkerID: w.id}); err != nil {
			slog.Error("worker registration failed", "worker_id", w.id, "error", err)
		}
		w.heartbeat = workerregistry.NewHeartbeatManager(w.registry, w.id, 15*time.Second, w.current, func(err error) {
			slog.Warn("worker heartbeat failed", "worker_id", w.id, "error", err)
		})
		w.heartbeat.Start(ctx)
	}

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the run loop to exit, waits for it, stops the heartbeat
// manager, and unregisters from the Worker Registry.
func (w *Worker) Stop(ctx context.Context) {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	if w.heartbeat != nil {
		w.heartbeat.Stop()
	}
	if w.registry != nil {
		if err := w.registry.Unregister(ctx, w.id); err != nil {
			slog.Warn("worker unregister failed", "worker_id", w.id, "error", err)
		}
	}
}

// Health returns a point-in-time snapshot for pool health reporting.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		CurrentJobID:   w.currentJobID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

func (w *Worker) current() (taskID, jobID string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentTaskID, w.currentJobID
}

func (w *Worker) setWorking(taskID, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = StatusWorking
	w.currentTaskID = taskID
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = StatusIdle
	w.currentTaskID = ""
	w.currentJobID = ""
	w.lastActivity = time.Now()
	w.tasksProcessed++
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("execution worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("execution worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
		}

		assignment, ok := w.coord.RequestWork(ctx, w.id, w.idleTimeout)
		if !ok {
			continue
		}
		w.process(ctx, assignment)
	}
}

// process carries one assignment from RUNNING through completion or
// failure.
func (w *Worker) process(ctx context.Context, a *coordinator.WorkAssignment) {
	task := a.Task.Task
	w.setWorking(task.ID, task.JobID)
	defer w.setIdle()

	log := slog.With("worker_id", w.id, "task_id", task.ID, "job_id", task.JobID)

	if err := w.svc.Stores().SetTaskStatus(ctx, task.ID, model.TaskRunning); err != nil {
		log.Error("failed to mark task running", "error", err)
	}

	job, ok, err := w.svc.Stores().GetJob(ctx, task.JobID)
	if err != nil || !ok {
		log.Error("failed to load job for assignment", "error", err)
		w.coord.CompleteWork(coordinator.WorkCompletion{TaskID: task.ID, QueueID: a.QueueID, EstimatedTokens: a.EstimatedTokens})
		return
	}

	resp, callErr := w.llm.GetResponse(ctx, LLMRequest{
		SystemPrompt: a.Task.SystemPrompt,
		UserPrompt:   a.Task.UserPrompt,
		Cache:        job.Cache,
		Iteration:    task.Iteration,
		FilesList:    a.Task.FilesList,
	})

	if callErr != nil {
		actual := 0
		w.coord.CompleteWork(coordinator.WorkCompletion{TaskID: task.ID, QueueID: a.QueueID, EstimatedTokens: a.EstimatedTokens, ActualTokens: &actual})
		kind := Classify(callErr)
		if ferr := w.svc.OnTaskFailed(ctx, job, task, kind, callErr.Error()); ferr != nil {
			log.Error("OnTaskFailed failed", "error", ferr)
		}
		return
	}

	actual := resp.InputTokens + resp.OutputTokens
	w.coord.CompleteWork(coordinator.WorkCompletion{TaskID: task.ID, QueueID: a.QueueID, EstimatedTokens: a.EstimatedTokens, ActualTokens: &actual})

	answer := model.Answer{
		JobID:                 task.JobID,
		InterviewID:           task.InterviewID,
		QuestionName:          task.QuestionName,
		Value:                 resp.Answer,
		Comment:               resp.Comment,
		SystemPrompt:          a.Task.SystemPrompt,
		UserPrompt:            a.Task.UserPrompt,
		Cached:                resp.CacheUsed,
		InputTokens:           resp.InputTokens,
		OutputTokens:          resp.OutputTokens,
		RawResponse:           resp.RawResponse,
		GeneratedTokens:       resp.GeneratedTokens,
		ModelID:               task.ModelID,
		InputPricePerMillion:  resp.InputPricePerMillion,
		OutputPricePerMillion: resp.OutputPricePerMillion,
		CacheKey:              a.Task.CacheKey,
		ReasoningSummary:      resp.ReasoningSummary,
	}

	if err := w.svc.OnTaskCompleted(ctx, job, task, answer); err != nil {
		log.Error("OnTaskCompleted failed", "error", err)
	}
}

// pollJitter adds up to jitter of random spread around base so many
// idle workers don't long-poll in lockstep.
func pollJitter(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}
