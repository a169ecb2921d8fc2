// Package coordinator bridges the rate-limited dispatch queues to
// polling workers, assigning the best available rendered task to whichever
// worker asks next, and reconciling estimated vs actual token usage
// once a call completes.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/queue"
)

// maxAssignAttempts bounds how many dispatch-heap entries TryAssign
// will examine before giving up for this call, so a burst of
// still-rate-limited queues can't turn an assignment attempt into an
// unbounded scan of the heap.
const maxAssignAttempts = 10

// WorkAssignment is handed to a worker in response to RequestWork.
type WorkAssignment struct {
	Task            model.RenderedTask
	QueueID         string
	APIKey          string
	AssignedAt      time.Time
	EstimatedTokens int
}

// WorkCompletion is reported back by a worker once a call finishes (or
// fails), so the coordinator can reconcile the queue's TPM bucket.
type WorkCompletion struct {
	TaskID          string
	QueueID         string
	EstimatedTokens int
	ActualTokens    *int // nil if the call never returned usage (e.g. it errored before a response)
}

// APIKeys resolves the credential a worker needs to call a service.
type APIKeys interface {
	Key(service string) string
}

// DeadWorkerTask names one task that was in flight on a worker that
// stopped heartbeating.
type DeadWorkerTask struct {
	WorkerID string
	JobID    string
	TaskID   string
}

// DeadWorkerSource supplies the coordinator's dead-worker recovery
// loop with the tasks to requeue and a way to clear the dead worker's
// registry entry once recovered.
type DeadWorkerSource interface {
	DeadWorkerTasks(ctx context.Context) ([]DeadWorkerTask, error)
	Cleanup(ctx context.Context, workerID string) error
}

type inFlightEntry struct {
	queueID    string
	task       model.RenderedTask
	assignedAt time.Time
}

// Coordinator owns no queues itself; it drives queue.Registry's
// dispatch heap and tracks in-flight assignments so a dead worker's
// work can be requeued.
type Coordinator struct {
	registry *queue.Registry
	keys     APIKeys

	mu       sync.Mutex
	inflight map[string]inFlightEntry // task id -> assignment

	waitersMu sync.Mutex
	waiters   map[string]chan struct{} // worker id -> wake channel

	deadWorkers DeadWorkerSource
}

// New constructs a Coordinator driving registry's dispatch heap,
// resolving worker credentials through keys.
func New(registry *queue.Registry, keys APIKeys) *Coordinator {
	return &Coordinator{
		registry: registry,
		keys:     keys,
		inflight: make(map[string]inFlightEntry),
		waiters:  make(map[string]chan struct{}),
	}
}

// SetDeadWorkerSource wires the dead-worker recovery loop's dependency
// after construction, since the worker registry and the coordinator
// are typically built in either order by cmd/jobrunner.
func (c *Coordinator) SetDeadWorkerSource(src DeadWorkerSource) {
	c.deadWorkers = src
}

// Enqueue routes a freshly rendered task to its queue and wakes every
// worker currently long-polling, since the new work might be
// immediately assignable.
func (c *Coordinator) Enqueue(task model.RenderedTask) (*queue.Queue, bool) {
	q, ok := c.registry.EnqueueTask(task)
	if ok {
		c.wakeAll()
	}
	return q, ok
}

// wait registers a fresh wake channel for workerID. Each call gets its
// own channel; wakeAll closes and discards every registered channel,
// so a channel is never closed twice.
func (c *Coordinator) wait(workerID string) <-chan struct{} {
	ch := make(chan struct{})
	c.waitersMu.Lock()
	c.waiters[workerID] = ch
	c.waitersMu.Unlock()
	return ch
}

func (c *Coordinator) wakeAll() {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	for id, ch := range c.waiters {
		close(ch)
		delete(c.waiters, id)
	}
}

// TryAssign examines up to maxAssignAttempts entries from the dispatch
// heap, looking for one whose head task can acquire rate-limit budget
// right now. A queue that is still rate-limited, or that still holds
// tasks after an assignment, is pushed back onto the heap before
// returning; a queue found empty or no longer registered is not.
func (c *Coordinator) TryAssign(now time.Time) (*WorkAssignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type pending struct {
		id    string
		avail time.Time
	}
	var tryLater []pending
	var assignment *WorkAssignment

	heap := c.registry.Heap()
	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		id, avail, ok := heap.Pop()
		if !ok {
			break
		}
		if avail.After(now) {
			// The heap is ordered by availability time, so nothing
			// behind this entry is any better; stop scanning.
			heap.Push(id, avail)
			break
		}

		q, ok := c.registry.QueueByID(id)
		if !ok {
			continue
		}
		task, ok := q.Peek()
		if !ok {
			continue // emptied since it was pushed; nothing to push back
		}

		if !q.TryAcquire(task.EstimatedTokens) {
			tryLater = append(tryLater, pending{id: id, avail: now.Add(q.TimeUntilAvailable(task.EstimatedTokens))})
			continue
		}

		q.Dequeue()
		assignment = &WorkAssignment{
			Task:            task,
			QueueID:         id,
			APIKey:          c.keys.Key(task.Service),
			AssignedAt:      now,
			EstimatedTokens: task.EstimatedTokens,
		}
		c.inflight[task.Task.ID] = inFlightEntry{queueID: id, task: task, assignedAt: now}

		if next, ok := q.Peek(); ok {
			tryLater = append(tryLater, pending{id: id, avail: now.Add(q.TimeUntilAvailable(next.EstimatedTokens))})
		}
		break
	}

	for _, p := range tryLater {
		heap.Push(p.id, p.avail)
	}

	return assignment, assignment != nil
}

// RequestWork long-polls for up to idleTimeout, retrying TryAssign
// whenever either a new enqueue wakes this worker or a short poll
// interval elapses (covering queues that only become available with
// the passage of time, which enqueue alone can't signal).
func (c *Coordinator) RequestWork(ctx context.Context, workerID string, idleTimeout time.Duration) (*WorkAssignment, bool) {
	deadline := time.Now().Add(idleTimeout)
	const pollInterval = 200 * time.Millisecond

	for {
		if a, ok := c.TryAssign(time.Now()); ok {
			return a, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		wait := pollInterval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-c.wait(workerID):
		case <-time.After(wait):
		}
	}
}

// CompleteWork removes the task from in-flight tracking and, if the
// worker reported actual usage, reconciles the queue's TPM bucket.
func (c *Coordinator) CompleteWork(completion WorkCompletion) {
	c.mu.Lock()
	delete(c.inflight, completion.TaskID)
	c.mu.Unlock()

	if completion.ActualTokens == nil {
		return
	}
	if q, ok := c.registry.QueueByID(completion.QueueID); ok {
		q.Reconcile(completion.EstimatedTokens, *completion.ActualTokens)
	}
}

// RequeueStaleTasks re-enqueues every in-flight task whose assignment
// is older than threshold, for recovery after a worker dies without
// reporting completion. Returns the requeued task ids.
func (c *Coordinator) RequeueStaleTasks(threshold time.Duration) []string {
	cutoff := time.Now().Add(-threshold)

	c.mu.Lock()
	var stale []inFlightEntry
	for id, entry := range c.inflight {
		if entry.assignedAt.Before(cutoff) {
			stale = append(stale, entry)
			delete(c.inflight, id)
		}
	}
	c.mu.Unlock()

	requeued := make([]string, 0, len(stale))
	for _, entry := range stale {
		c.registry.EnqueueTask(entry.task)
		requeued = append(requeued, entry.task.Task.ID)
	}
	if len(requeued) > 0 {
		c.wakeAll()
	}
	return requeued
}

// RecoverDeadWorkers asks the configured DeadWorkerSource for tasks
// stranded on workers that stopped heartbeating, requeues each one
// still present in the in-flight table, and clears the worker's
// registry entry. A nil DeadWorkerSource makes
// this a no-op, so callers can wire it up after construction.
func (c *Coordinator) RecoverDeadWorkers(ctx context.Context) (int, error) {
	if c.deadWorkers == nil {
		return 0, nil
	}
	tasks, err := c.deadWorkers.DeadWorkerTasks(ctx)
	if err != nil {
		return 0, err
	}

	recovered := make(map[string]bool)
	for _, t := range tasks {
		c.mu.Lock()
		entry, ok := c.inflight[t.TaskID]
		if ok {
			delete(c.inflight, t.TaskID)
		}
		c.mu.Unlock()
		if ok {
			c.registry.EnqueueTask(entry.task)
		}
		if !recovered[t.WorkerID] {
			if err := c.deadWorkers.Cleanup(ctx, t.WorkerID); err != nil {
				return len(recovered), err
			}
			recovered[t.WorkerID] = true
		}
	}
	if len(tasks) > 0 {
		c.wakeAll()
	}
	return len(tasks), nil
}
