package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// KeyResolver reports whether an API key is configured for a service,
// and what default rate limits it ships with. Auto-registration only
// creates a queue when a key is known; otherwise RouteTask reports
// ok=false and no queue is created.
type KeyResolver interface {
	HasKey(service string) bool
	DefaultLimits(service, modelName string) Limits
}

// StaticKeyResolver is the simplest KeyResolver: a fixed set of
// services known to have keys configured, with one limits table.
type StaticKeyResolver struct {
	Services map[string]bool
	Limits   map[string]Limits // keyed by service; falls back to DefaultLimits
}

func (r *StaticKeyResolver) HasKey(service string) bool { return r.Services[service] }

func (r *StaticKeyResolver) DefaultLimits(service, _ string) Limits {
	if l, ok := r.Limits[service]; ok {
		return l
	}
	return DefaultLimits
}

// Registry indexes queues by id and by (service, model), auto-creates
// queues on first route when a key is available, and routes a task to
// the shallowest matching queue. It also owns the DispatchHeap, since
// "push only if the queue was empty" is a registry-level invariant
// coupling enqueue to dispatch.
type Registry struct {
	mu       sync.Mutex
	byID     map[string]*Queue
	byRoute  map[string][]string // "service|model" -> queue ids
	resolver KeyResolver
	heap     *DispatchHeap
	idSeq    int
}

// NewRegistry constructs an empty registry backed by resolver for
// auto-registration decisions.
func NewRegistry(resolver KeyResolver) *Registry {
	return &Registry{
		byID:     make(map[string]*Queue),
		byRoute:  make(map[string][]string),
		resolver: resolver,
		heap:     NewDispatchHeap(),
	}
}

func routeKey(service, modelName string) string { return service + "|" + modelName }

// RegisterQueue inserts an explicitly-constructed queue (used for
// registering non-default limits at startup).
func (r *Registry) RegisterQueue(q *Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(q)
}

func (r *Registry) registerLocked(q *Queue) {
	r.byID[q.ID] = q
	key := routeKey(q.Service, q.Model)
	r.byRoute[key] = append(r.byRoute[key], q.ID)
}

// RouteTask returns the queue with the minimum FIFO depth among those
// registered for (service, model), auto-creating one with default
// limits if none exists and a key is known. Returns ok=false with no
// error if no key is configured (caller should fail the task with
// ErrorKind "no_queue").
func (r *Registry) RouteTask(service, modelName string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey(service, modelName)
	ids := r.byRoute[key]
	if len(ids) == 0 {
		if !r.resolver.HasKey(service) {
			return nil, false
		}
		r.idSeq++
		q := New(fmt.Sprintf("q-%s-%s-%d", service, modelName, r.idSeq), service, modelName,
			r.resolver.DefaultLimits(service, modelName))
		r.registerLocked(q)
		return q, true
	}
	var best *Queue
	bestDepth := -1
	for _, id := range ids {
		q := r.byID[id]
		depth := q.Len()
		if bestDepth == -1 || depth < bestDepth {
			best, bestDepth = q, depth
		}
	}
	return best, true
}

// EnqueueTask routes a rendered task to a queue and enqueues it. If the
// queue was empty before this enqueue, it is pushed onto the dispatch
// heap so try_assign can discover it.
func (r *Registry) EnqueueTask(task model.RenderedTask) (*Queue, bool) {
	q, ok := r.RouteTask(task.Service, task.ModelName)
	if !ok {
		return nil, false
	}
	wasEmpty := q.Len() == 0
	q.Enqueue(task)
	if wasEmpty {
		wait := q.TimeUntilAvailable(task.EstimatedTokens)
		r.heap.Push(q.ID, time.Now().Add(wait))
	}
	return q, true
}

// Heap exposes the registry's dispatch heap for the coordinator.
func (r *Registry) Heap() *DispatchHeap { return r.heap }

// QueueByID looks up a queue by id, for coordinator requeue paths.
func (r *Registry) QueueByID(id string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.byID[id]
	return q, ok
}
