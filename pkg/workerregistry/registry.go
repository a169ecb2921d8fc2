// Package workerregistry tracks execution workers' liveness:
// registration, heartbeats, and dead-worker detection so the
// coordinator can requeue work stranded on a worker that stopped
// responding.
package workerregistry

import (
	"context"
	"encoding/gob"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Record crosses the Storage Protocol as an interface value, so the
// byte-encoding backends need its concrete type registered.
func init() {
	gob.Register(Record{})
}

// Record is the persisted state of one worker.
type Record struct {
	WorkerID      string            `json:"worker_id"`
	Hostname      string            `json:"hostname"`
	StartedAt     time.Time         `json:"started_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Capabilities  []string          `json:"capabilities"`
	CurrentTaskID string            `json:"current_task_id,omitempty"`
	CurrentJobID  string            `json:"current_job_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Registry persists worker Records in the storage Protocol's Volatile
// namespace and tracks the live set via the Sets surface, mirroring
// the jobservice.Stores pattern of a thin typed layer over raw keys.
type Registry struct {
	st storage.Storage
}

// New constructs a Registry backed by st.
func New(st storage.Storage) *Registry {
	return &Registry{st: st}
}

// Register records a newly started worker and adds it to the active
// set.
func (r *Registry) Register(ctx context.Context, rec Record) error {
	rec.StartedAt = time.Now()
	rec.LastHeartbeat = rec.StartedAt
	if err := r.st.Volatile().Write(ctx, storage.Keys.WorkerInfo(rec.WorkerID), rec); err != nil {
		return err
	}
	_, err := r.st.Sets().Add(ctx, storage.Keys.WorkersActive(), rec.WorkerID)
	return err
}

// Heartbeat updates a worker's last-seen time and current assignment
// in place. Callers pass an empty taskID/jobID to record an idle
// worker.
func (r *Registry) Heartbeat(ctx context.Context, workerID, taskID, jobID string) error {
	rec, ok, err := r.get(ctx, workerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("worker %s is not registered", workerID)
	}
	rec.LastHeartbeat = time.Now()
	rec.CurrentTaskID = taskID
	rec.CurrentJobID = jobID
	return r.st.Volatile().Write(ctx, storage.Keys.WorkerInfo(workerID), rec)
}

// Unregister removes a worker from the active set on graceful
// shutdown. The info record itself is left in place as a historical
// trace; only the active-set membership is what routing decisions
// consult.
func (r *Registry) Unregister(ctx context.Context, workerID string) error {
	return r.st.Sets().Remove(ctx, storage.Keys.WorkersActive(), workerID)
}

func (r *Registry) get(ctx context.Context, workerID string) (Record, bool, error) {
	v, ok, err := r.st.Volatile().Read(ctx, storage.Keys.WorkerInfo(workerID))
	if err != nil || !ok {
		return Record{}, ok, err
	}
	return v.(Record), true, nil
}

// GetDeadWorkers returns every active worker whose last heartbeat is
// older than timeout.
func (r *Registry) GetDeadWorkers(ctx context.Context, timeout time.Duration) ([]Record, error) {
	ids, err := r.st.Sets().Members(ctx, storage.Keys.WorkersActive())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = storage.Keys.WorkerInfo(id)
	}
	raw, err := r.st.Volatile().BatchRead(ctx, keys)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-timeout)
	var dead []Record
	for i := range ids {
		v, ok := raw[keys[i]]
		if !ok {
			continue
		}
		rec := v.(Record)
		if rec.LastHeartbeat.Before(cutoff) {
			dead = append(dead, rec)
		}
	}
	return dead, nil
}

// CleanupDeadWorkers removes every dead worker (per timeout) from the
// active set, returning the ids removed.
func (r *Registry) CleanupDeadWorkers(ctx context.Context, timeout time.Duration) ([]string, error) {
	dead, err := r.GetDeadWorkers(ctx, timeout)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(dead))
	for i, rec := range dead {
		ids[i] = rec.WorkerID
		if err := r.st.Sets().Remove(ctx, storage.Keys.WorkersActive(), rec.WorkerID); err != nil {
			return ids[:i], err
		}
	}
	return ids, nil
}

// GetDeadWorkerTasks returns one entry per dead worker that was
// holding a task when it stopped heartbeating, for the coordinator's
// recovery loop.
func (r *Registry) GetDeadWorkerTasks(ctx context.Context, timeout time.Duration) ([]DeadWorkerTask, error) {
	dead, err := r.GetDeadWorkers(ctx, timeout)
	if err != nil {
		return nil, err
	}
	var out []DeadWorkerTask
	for _, rec := range dead {
		if rec.CurrentTaskID == "" {
			continue
		}
		out = append(out, DeadWorkerTask{WorkerID: rec.WorkerID, JobID: rec.CurrentJobID, TaskID: rec.CurrentTaskID})
	}
	return out, nil
}

// OrphansForPod returns one entry per active worker registered under
// podID's own worker-ID scheme ("<podID>-worker-N") that was holding a
// task, regardless of heartbeat freshness. A pod that crashes and
// restarts under the same pod ID will reuse those exact worker IDs, so
// GetDeadWorkers's heartbeat timeout would never fire for them: the
// new process IS the worker now, just with no memory of the task it
// was previously running. Called once at startup, before the pod
// registers its own workers, to reconcile that prior instance's
// stranded work.
func (r *Registry) OrphansForPod(ctx context.Context, podID string) ([]DeadWorkerTask, error) {
	ids, err := r.st.Sets().Members(ctx, storage.Keys.WorkersActive())
	if err != nil {
		return nil, err
	}
	prefix := podID + "-worker-"
	var out []DeadWorkerTask
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		rec, ok, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || rec.CurrentTaskID == "" {
			continue
		}
		out = append(out, DeadWorkerTask{WorkerID: id, JobID: rec.CurrentJobID, TaskID: rec.CurrentTaskID})
	}
	return out, nil
}

// DeadWorkerTask mirrors coordinator.DeadWorkerTask so this package
// doesn't need to import coordinator just to shape its return value;
// an adapter in cmd/jobrunner converts between the two.
type DeadWorkerTask struct {
	WorkerID string
	JobID    string
	TaskID   string
}

// Cleanup removes a single worker from the active set, used by the
// coordinator's DeadWorkerSource after it has requeued that worker's
// stranded task.
func (r *Registry) Cleanup(ctx context.Context, workerID string) error {
	return r.st.Sets().Remove(ctx, storage.Keys.WorkersActive(), workerID)
}

// HeartbeatManager runs a background ticker that calls Heartbeat for
// one worker at a fixed interval. Heartbeat failures are logged by the
// caller-supplied onError hook but never stop the loop: a transient
// storage error shouldn't make a healthy worker look dead.
type HeartbeatManager struct {
	registry *Registry
	workerID string
	interval time.Duration
	current  func() (taskID, jobID string)
	onError  func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeatManager constructs a manager that heartbeats workerID
// every interval, sourcing its current assignment from current.
func NewHeartbeatManager(registry *Registry, workerID string, interval time.Duration, current func() (taskID, jobID string), onError func(error)) *HeartbeatManager {
	if onError == nil {
		onError = func(error) {}
	}
	return &HeartbeatManager{
		registry: registry,
		workerID: workerID,
		interval: interval,
		current:  current,
		onError:  onError,
	}
}

// Start launches the background ticker. Calling Start twice without an
// intervening Stop is a programmer error and replaces the prior loop.
func (m *HeartbeatManager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (m *HeartbeatManager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *HeartbeatManager) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *HeartbeatManager) tick(ctx context.Context) {
	taskID, jobID := m.current()
	if err := m.registry.Heartbeat(ctx, m.workerID, taskID, jobID); err != nil {
		m.onError(err)
	}
}
