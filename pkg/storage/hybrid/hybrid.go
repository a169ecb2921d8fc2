// Package hybrid composes a durable backend for the Persistent
// namespace with a fast backend for Volatile/Sets/Blob, the split
// called for by the storage protocol: job/interview/task/answer
// definitions survive a restart in Postgres, while hot per-task status
// and ready-set churn live in Redis where pop/increment are cheap.
package hybrid

import (
	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Store wires together two storage.Storage implementations, taking
// Persistent from durable and everything else from fast.
type Store struct {
	durable storage.Storage
	fast    storage.Storage
}

// New returns a Store whose Persistent namespace is served by durable
// and whose Volatile/Sets/Blob namespaces are served by fast.
func New(durable, fast storage.Storage) *Store {
	return &Store{durable: durable, fast: fast}
}

func (s *Store) Persistent() storage.Persistent { return s.durable.Persistent() }
func (s *Store) Volatile() storage.Volatile     { return s.fast.Volatile() }
func (s *Store) Sets() storage.Sets             { return s.fast.Sets() }

// Blob prefers the fast backend's blob surface when it has one, since
// offloaded FileStore content is read on the hot render path; it falls
// back to durable so a blob surface still exists when fast has none.
func (s *Store) Blob() storage.Blob {
	if b := s.fast.Blob(); b != nil {
		return b
	}
	return s.durable.Blob()
}

// closer is implemented by backends with resources to release; not
// every storage.Storage does (e.g. memory.Store has nothing to close).
type closer interface {
	Close() error
}

// Close releases both underlying backends, returning the first error
// encountered if either fails to close.
func (s *Store) Close() error {
	var first error
	if c, ok := s.durable.(closer); ok {
		if err := c.Close(); err != nil {
			first = err
		}
	}
	if c, ok := s.fast.(closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
