// Package redis implements the Storage Protocol against Redis, using
// one logical DB per namespace for isolation (persistent, volatile,
// sets, blob), the way the dependency pack's gomind redis client
// isolates discovery/ratelimit/sessions/circuit-breaker state.
// Concrete Go values cross the wire via pkg/storage/codec so a Read
// call gets back the same type a Write call put in.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"github.com/codeready-toolchain/jobrunner/pkg/storage"
	"github.com/codeready-toolchain/jobrunner/pkg/storage/codec"
)

// Options configures the four per-namespace Redis connections.
type Options struct {
	URL          string
	Namespace    string
	PersistentDB int
	VolatileDB   int
	SetsDB       int
	BlobDB       int
}

// Store implements storage.Storage fully against Redis.
type Store struct {
	persistent *kvNS
	volatile   *kvNS
	sets       *setsNS
	blob       *blobNS
}

// New parses opts.URL once and opens four clients against it, one per
// DB, all sharing opts.Namespace as their key prefix.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	mk := func(db int) (*goredis.Client, error) {
		parsed, err := goredis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		parsed.DB = db
		return goredis.NewClient(parsed), nil
	}

	persistentClient, err := mk(opts.PersistentDB)
	if err != nil {
		return nil, err
	}
	volatileClient, err := mk(opts.VolatileDB)
	if err != nil {
		return nil, err
	}
	setsClient, err := mk(opts.SetsDB)
	if err != nil {
		return nil, err
	}
	blobClient, err := mk(opts.BlobDB)
	if err != nil {
		return nil, err
	}

	ns := opts.Namespace
	if ns == "" {
		ns = "jobrunner"
	}

	return &Store{
		persistent: &kvNS{client: persistentClient, namespace: ns},
		volatile:   &kvNS{client: volatileClient, namespace: ns},
		sets:       &setsNS{client: setsClient, namespace: ns},
		blob:       &blobNS{client: blobClient, namespace: ns},
	}, nil
}

func (s *Store) Persistent() storage.Persistent { return s.persistent }
func (s *Store) Volatile() storage.Volatile     { return s.volatile }
func (s *Store) Sets() storage.Sets             { return s.sets }
func (s *Store) Blob() storage.Blob             { return s.blob }

// Close releases all four underlying connections.
func (s *Store) Close() error {
	var first error
	for _, c := range []*goredis.Client{s.persistent.client, s.volatile.client, s.sets.client, s.blob.client} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func nsKey(namespace, key string) string { return namespace + ":" + key }

// kvNS backs both Persistent and Volatile: they differ only in which
// DB they point at and whether Increment is ever called on them.
//
// Plain int values are stored as decimal strings rather than gob
// bytes, so a counter seeded by Write/BatchWrite can be mutated by
// INCRBY (which requires an integer-string value) and a counter
// created by INCRBY can be read back. gob's binary framing never
// yields an all-digits payload, so the two representations can't be
// confused at decode time.
type kvNS struct {
	client    *goredis.Client
	namespace string
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case int:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(nil, v, 10), nil
	}
	return codec.Encode(value)
}

func decodeValue(b []byte) (any, error) {
	if n, err := strconv.Atoi(string(b)); err == nil {
		return n, nil
	}
	return codec.Decode(b)
}

func (n *kvNS) Write(ctx context.Context, key string, value any) error {
	b, err := encodeValue(value)
	if err != nil {
		return err
	}
	return n.client.Set(ctx, nsKey(n.namespace, key), b, 0).Err()
}

func (n *kvNS) Read(ctx context.Context, key string) (any, bool, error) {
	b, err := n.client.Get(ctx, nsKey(n.namespace, key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeValue(b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (n *kvNS) BatchWrite(ctx context.Context, items map[string]any) error {
	pipe := n.client.Pipeline()
	for k, v := range items {
		b, err := encodeValue(v)
		if err != nil {
			return err
		}
		pipe.Set(ctx, nsKey(n.namespace, k), b, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (n *kvNS) BatchRead(ctx context.Context, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = nsKey(n.namespace, k)
	}
	raw, err := n.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for i, r := range raw {
		if r == nil {
			continue
		}
		s, ok := r.(string)
		if !ok {
			continue
		}
		v, err := decodeValue([]byte(s))
		if err != nil {
			return nil, err
		}
		out[keys[i]] = v
	}
	return out, nil
}

// Increment is only ever called on the volatile namespace, but lives
// here since both namespaces share this type.
func (n *kvNS) Increment(ctx context.Context, key string, delta int) (int, error) {
	v, err := n.client.IncrBy(ctx, nsKey(n.namespace, key), int64(delta)).Result()
	return int(v), err
}

func (n *kvNS) Scan(ctx context.Context, pattern string) ([]string, error) {
	prefix := n.namespace + ":"
	var out []string
	var cursor uint64
	for {
		keys, next, err := n.client.Scan(ctx, cursor, prefix+pattern+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

func (n *kvNS) Delete(ctx context.Context, key string) error {
	return n.client.Del(ctx, nsKey(n.namespace, key)).Err()
}

// setsNS backs ready-sets, counted-interviews, and the active-workers
// registry with Redis's native set type; no encoding needed since
// every member is already a plain string id.
type setsNS struct {
	client    *goredis.Client
	namespace string
}

func (s *setsNS) Add(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, nsKey(s.namespace, key), member).Result()
	return n > 0, err
}

func (s *setsNS) AddMultiple(ctx context.Context, key string, members []string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := s.client.SAdd(ctx, nsKey(s.namespace, key), args...).Result()
	return int(n), err
}

func (s *setsNS) Remove(ctx context.Context, key, member string) error {
	return s.client.SRem(ctx, nsKey(s.namespace, key), member).Err()
}

func (s *setsNS) PopOne(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.SPop(ctx, nsKey(s.namespace, key)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *setsNS) PopMultiple(ctx context.Context, key string, n int) ([]string, error) {
	out, err := s.client.SPopN(ctx, nsKey(s.namespace, key), int64(n)).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	return out, err
}

func (s *setsNS) Members(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, nsKey(s.namespace, key)).Result()
}

func (s *setsNS) Size(ctx context.Context, key string) (int, error) {
	n, err := s.client.SCard(ctx, nsKey(s.namespace, key)).Result()
	return int(n), err
}

func (s *setsNS) CheckMembership(ctx context.Context, key string, members []string) ([]bool, error) {
	if len(members) == 0 {
		return nil, nil
	}
	cmds, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, m := range members {
			pipe.SIsMember(ctx, nsKey(s.namespace, key), m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(members))
	for i, cmd := range cmds {
		out[i] = cmd.(*goredis.BoolCmd).Val()
	}
	return out, nil
}

// blobNS stores offloaded FileStore payloads as raw bytes plus a
// small sidecar key for metadata, since Redis strings are bytes-native
// and don't need the gob codec persistent/volatile values do.
type blobNS struct {
	client    *goredis.Client
	namespace string
}

func (b *blobNS) PutBlob(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	pipe := b.client.Pipeline()
	pipe.Set(ctx, nsKey(b.namespace, "blob:"+key), data, 0)
	if len(metadata) > 0 {
		args := make(map[string]any, len(metadata))
		for k, v := range metadata {
			args[k] = v
		}
		pipe.HSet(ctx, nsKey(b.namespace, "blobmeta:"+key), args)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (b *blobNS) GetBlob(ctx context.Context, key string) ([]byte, map[string]string, bool, error) {
	data, err := b.client.Get(ctx, nsKey(b.namespace, "blob:"+key)).Bytes()
	if err == goredis.Nil {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	meta, err := b.client.HGetAll(ctx, nsKey(b.namespace, "blobmeta:"+key)).Result()
	if err != nil {
		return nil, nil, false, err
	}
	return data, meta, true, nil
}

func (b *blobNS) DeleteBlob(ctx context.Context, key string) error {
	pipe := b.client.Pipeline()
	pipe.Del(ctx, nsKey(b.namespace, "blob:"+key))
	pipe.Del(ctx, nsKey(b.namespace, "blobmeta:"+key))
	_, err := pipe.Exec(ctx)
	return err
}
