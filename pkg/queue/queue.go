// Package queue implements the rate-limited dispatch engine: per
// (service, model, key) FIFO queues backed by RPM/TPM token buckets, a
// global dispatch heap ordering queues by next-available time, and a
// registry that routes tasks to the shallowest matching queue.
package queue

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
	"github.com/codeready-toolchain/jobrunner/pkg/ratelimit"
)

// Limits describes a queue's per-minute request and token caps.
type Limits struct {
	RPM int
	TPM int
}

// DefaultLimits are the shipped defaults for providers without an
// explicit override.
var DefaultLimits = Limits{RPM: 10_000, TPM: 1_000_000}

// Stats reports a queue's throughput. EndTime is frozen (non-zero)
// whenever the FIFO is empty, so idle queues report an honest average
// rate instead of one that trends toward zero as wall-clock keeps
// advancing past the last completed request.
type Stats struct {
	StartTime    time.Time
	EndTime      time.Time // zero if still active
	RequestCount int
	TokenCount   int
}

// Queue owns one FIFO of pending model.RenderedTask descriptors for a
// single (service, model, key) and the two token buckets that gate it.
type Queue struct {
	mu sync.Mutex

	ID      string
	Service string
	Model   string

	rpm *ratelimit.TokenBucket
	tpm *ratelimit.TokenBucket

	fifo []model.RenderedTask

	stats Stats
}

// New constructs a Queue with the given per-minute limits.
func New(id, service, modelName string, limits Limits) *Queue {
	return &Queue{
		ID:      id,
		Service: service,
		Model:   modelName,
		rpm:     ratelimit.NewTokenBucket(float64(limits.RPM), float64(limits.RPM)/60.0),
		tpm:     ratelimit.NewTokenBucket(float64(limits.TPM), float64(limits.TPM)/60.0),
	}
}

// Enqueue appends a rendered task to the FIFO tail. Stats stay frozen
// until the next successful TryAcquire, not merely on enqueue; an
// enqueue onto an otherwise-idle-but-rate-limited queue shouldn't yet
// claim a fresh throughput window.
func (q *Queue) Enqueue(task model.RenderedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stats.StartTime.IsZero() {
		q.stats.StartTime = time.Now()
	}
	q.fifo = append(q.fifo, task)
}

// Peek returns the head of the FIFO without removing it.
func (q *Queue) Peek() (model.RenderedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return model.RenderedTask{}, false
	}
	return q.fifo[0], true
}

// Dequeue removes and returns the head of the FIFO. Freezes stats'
// end-time if the FIFO is now empty.
func (q *Queue) Dequeue() (model.RenderedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (model.RenderedTask, bool) {
	if len(q.fifo) == 0 {
		return model.RenderedTask{}, false
	}
	t := q.fifo[0]
	q.fifo = q.fifo[1:]
	if len(q.fifo) == 0 {
		q.stats.EndTime = time.Now()
	}
	return t, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// TryAcquire atomically takes 1 RPM token and estimatedTokens TPM
// tokens. If either fails, any token taken from the other bucket is
// returned so buckets never end up partially debited.
func (q *Queue) TryAcquire(estimatedTokens int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.rpm.TryAcquire(1) {
		return false
	}
	if !q.tpm.TryAcquire(float64(estimatedTokens)) {
		q.rpm.Reconcile(0, -1) // give the RPM token back
		return false
	}
	q.stats.EndTime = time.Time{}
	q.stats.RequestCount++
	q.stats.TokenCount += estimatedTokens
	return true
}

// TimeUntilAvailable reports the longer of the two buckets' waits.
func (q *Queue) TimeUntilAvailable(estimatedTokens int) time.Duration {
	rpmWait := q.rpm.TimeUntilAvailable(1)
	tpmWait := q.tpm.TimeUntilAvailable(float64(estimatedTokens))
	if rpmWait > tpmWait {
		return rpmWait
	}
	return tpmWait
}

// Reconcile adjusts the TPM bucket (and usage counter) by the
// difference between estimated and actual token usage.
func (q *Queue) Reconcile(estimated, actual int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tpm.Reconcile(float64(estimated), float64(actual))
	q.stats.TokenCount += actual - estimated
}

// Stats returns a snapshot of the queue's throughput counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
