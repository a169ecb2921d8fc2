package queue

import (
	"container/heap"
	"sync"
	"time"
)

// heapEntry is one (queue_id, availability_time) pair ordered by
// availability_time ascending.
type heapEntry struct {
	queueID string
	avail   time.Time
}

type entryHeap []heapEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].avail.Before(h[j].avail) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(heapEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// DispatchHeap is a min-heap of (availability_time, queue_id) with lazy
// invalidation: a parallel map tracks each queue's *current*
// availability time, so Push never needs to locate and update an
// existing heap entry. Pop discards any popped entry whose recorded
// time no longer matches the map (it is stale, superseded by a later
// Push for the same queue).
type DispatchHeap struct {
	mu      sync.Mutex
	entries entryHeap
	current map[string]time.Time
}

// NewDispatchHeap constructs an empty heap.
func NewDispatchHeap() *DispatchHeap {
	return &DispatchHeap{current: make(map[string]time.Time)}
}

// Push inserts a new entry for queueID at availableAt and records it as
// the queue's current availability time, implicitly invalidating any
// earlier heap entry for the same queue.
func (h *DispatchHeap) Push(queueID string, availableAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current[queueID] = availableAt
	heap.Push(&h.entries, heapEntry{queueID: queueID, avail: availableAt})
}

// Pop removes and returns the earliest valid (non-stale) entry. Returns
// false if the heap holds no valid entries.
func (h *DispatchHeap) Pop() (string, time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.entries.Len() > 0 {
		e := heap.Pop(&h.entries).(heapEntry)
		cur, ok := h.current[e.queueID]
		if !ok || !cur.Equal(e.avail) {
			continue // stale: a later Push replaced this entry
		}
		delete(h.current, e.queueID)
		return e.queueID, e.avail, true
	}
	return "", time.Time{}, false
}

// Peek returns the earliest valid entry without removing it.
func (h *DispatchHeap) Peek() (string, time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.entries.Len() > 0 {
		e := h.entries[0]
		cur, ok := h.current[e.queueID]
		if !ok || !cur.Equal(e.avail) {
			heap.Pop(&h.entries)
			continue
		}
		return e.queueID, e.avail, true
	}
	return "", time.Time{}, false
}

// Len reports the number of (possibly stale) entries still in the heap.
func (h *DispatchHeap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}
