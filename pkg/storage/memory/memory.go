// Package memory implements the Storage Protocol over plain Go maps,
// for tests and single-process mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/jobrunner/pkg/storage"
)

// Store is a process-local Storage backed by maps guarded by a single
// RWMutex per namespace. It satisfies storage.Storage in full,
// including the optional blob surface.
type Store struct {
	persistent *persistentNS
	volatile   *volatileNS
	sets       *setsNS
	blob       *blobNS
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		persistent: &persistentNS{data: make(map[string]any)},
		volatile:   &volatileNS{data: make(map[string]any)},
		sets:       &setsNS{data: make(map[string]map[string]struct{})},
		blob:       &blobNS{data: make(map[string]blobEntry)},
	}
}

func (s *Store) Persistent() storage.Persistent { return s.persistent }
func (s *Store) Volatile() storage.Volatile     { return s.volatile }
func (s *Store) Sets() storage.Sets             { return s.sets }
func (s *Store) Blob() storage.Blob             { return s.blob }

type persistentNS struct {
	mu   sync.RWMutex
	data map[string]any
}

func (p *persistentNS) Write(_ context.Context, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}

func (p *persistentNS) Read(_ context.Context, key string) (any, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[key]
	return v, ok, nil
}

func (p *persistentNS) BatchWrite(_ context.Context, items map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range items {
		p.data[k] = v
	}
	return nil
}

func (p *persistentNS) BatchRead(_ context.Context, keys []string) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := p.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (p *persistentNS) Scan(_ context.Context, pattern string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return scanPrefix(p.data, pattern), nil
}

func (p *persistentNS) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

type volatileNS struct {
	mu   sync.RWMutex
	data map[string]any
}

func (v *volatileNS) Write(_ context.Context, key string, value any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = value
	return nil
}

func (v *volatileNS) Read(_ context.Context, key string) (any, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	x, ok := v.data[key]
	return x, ok, nil
}

func (v *volatileNS) BatchWrite(_ context.Context, items map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, val := range items {
		v.data[k] = val
	}
	return nil
}

func (v *volatileNS) BatchRead(_ context.Context, keys []string) (map[string]any, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if val, ok := v.data[k]; ok {
			out[k] = val
		}
	}
	return out, nil
}

// Increment is the one operation that must be atomic: current value
// (defaulting to 0) plus delta, stored back under the lock.
func (v *volatileNS) Increment(_ context.Context, key string, delta int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur := 0
	if existing, ok := v.data[key]; ok {
		if n, ok := existing.(int); ok {
			cur = n
		}
	}
	cur += delta
	v.data[key] = cur
	return cur, nil
}

func (v *volatileNS) Scan(_ context.Context, pattern string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return scanPrefix(v.data, pattern), nil
}

func (v *volatileNS) Delete(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data, key)
	return nil
}

type setsNS struct {
	mu   sync.Mutex
	data map[string]map[string]struct{}
}

func (s *setsNS) Add(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		set = make(map[string]struct{})
		s.data[key] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

func (s *setsNS) AddMultiple(_ context.Context, key string, members []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		set = make(map[string]struct{})
		s.data[key] = set
	}
	added := 0
	for _, m := range members {
		if _, exists := set[m]; !exists {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *setsNS) Remove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.data[key]; ok {
		delete(set, member)
	}
	return nil
}

func (s *setsNS) PopOne(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok || len(set) == 0 {
		return "", false, nil
	}
	for m := range set {
		delete(set, m)
		return m, true, nil
	}
	return "", false, nil
}

func (s *setsNS) PopMultiple(_ context.Context, key string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, n)
	for m := range set {
		if len(out) >= n {
			break
		}
		delete(set, m)
		out = append(out, m)
	}
	return out, nil
}

func (s *setsNS) Members(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *setsNS) Size(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[key]), nil
}

func (s *setsNS) CheckMembership(_ context.Context, key string, members []string) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.data[key]
	out := make([]bool, len(members))
	for i, m := range members {
		_, out[i] = set[m]
	}
	return out, nil
}

type blobEntry struct {
	data     []byte
	metadata map[string]string
}

type blobNS struct {
	mu   sync.RWMutex
	data map[string]blobEntry
}

func (b *blobNS) PutBlob(_ context.Context, key string, data []byte, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data[key] = blobEntry{data: cp, metadata: metadata}
	return nil
}

func (b *blobNS) GetBlob(_ context.Context, key string) ([]byte, map[string]string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.data[key]
	if !ok {
		return nil, nil, false, nil
	}
	return e.data, e.metadata, true, nil
}

func (b *blobNS) DeleteBlob(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// scanPrefix implements the simple glob subset the engine actually
// uses: the pattern is a key prefix, with an optional trailing "*"
// tolerated for callers that spell the glob out. This matches the SQL
// backend's LIKE 'pattern%' and the Redis backend's 'pattern*' SCAN.
func scanPrefix(data map[string]any, pattern string) []string {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
