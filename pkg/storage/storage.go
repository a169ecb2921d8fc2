// Package storage defines the Storage Protocol: an opaque key-value
// surface with three required namespaces (persistent, volatile, sets)
// and an optional blob namespace. All hot-path callers (render batches,
// progress snapshots, results assembly) must use the batch variants so
// round-trip count stays O(1) per logical step rather than O(n) per
// task.
package storage

import "context"

// Persistent holds immutable-ish durable data: job definitions,
// questions, answers. Implementations must guarantee per-key
// linearizability of writes.
type Persistent interface {
	Write(ctx context.Context, key string, value any) error
	Read(ctx context.Context, key string) (any, bool, error)
	BatchWrite(ctx context.Context, items map[string]any) error
	BatchRead(ctx context.Context, keys []string) (map[string]any, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Volatile holds hot, frequently-mutated state: counters, task status,
// ready-sets support structures. Increment must be atomic.
type Volatile interface {
	Write(ctx context.Context, key string, value any) error
	Read(ctx context.Context, key string) (any, bool, error)
	BatchWrite(ctx context.Context, items map[string]any) error
	BatchRead(ctx context.Context, keys []string) (map[string]any, error)
	Increment(ctx context.Context, key string, delta int) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Sets backs ready-sets, counted-interview sets, and the active-workers
// registry. Add/Remove/Pop must be atomic.
type Sets interface {
	Add(ctx context.Context, key, member string) (bool, error)
	AddMultiple(ctx context.Context, key string, members []string) (int, error)
	Remove(ctx context.Context, key, member string) error
	PopOne(ctx context.Context, key string) (string, bool, error)
	PopMultiple(ctx context.Context, key string, n int) ([]string, error)
	Members(ctx context.Context, key string) ([]string, error)
	Size(ctx context.Context, key string) (int, error)
	CheckMembership(ctx context.Context, key string, members []string) ([]bool, error)
}

// Blob is the optional fourth surface used for offloaded file content
// in scenarios. Not every Storage implementation provides one; callers
// that never offload FileStore fields can leave it nil.
type Blob interface {
	PutBlob(ctx context.Context, key string, data []byte, metadata map[string]string) error
	GetBlob(ctx context.Context, key string) ([]byte, map[string]string, bool, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Storage aggregates the three required namespaces plus an optional
// blob surface. Components depend on this interface, never on a
// concrete backend.
type Storage interface {
	Persistent() Persistent
	Volatile() Volatile
	Sets() Sets
	Blob() Blob // may return nil if unsupported
}
