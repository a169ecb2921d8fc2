package sql

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/jobrunner/pkg/storage/codec"
)

func placeholders(n, offset int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", offset+i+1)
	}
	return strings.Join(parts, ", ")
}

// persistentNS stores gob-encoded values in persistent_kv.
type persistentNS struct{ db *stdsql.DB }

func (p *persistentNS) Write(ctx context.Context, key string, value any) error {
	b, err := codec.Encode(value)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO persistent_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, b)
	return err
}

func (p *persistentNS) Read(ctx context.Context, key string) (any, bool, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM persistent_kv WHERE key = $1`, key).Scan(&b)
	if err == stdsql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := codec.Decode(b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (p *persistentNS) BatchWrite(ctx context.Context, items map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO persistent_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range items {
		b, err := codec.Encode(v)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, k, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *persistentNS) BatchRead(ctx context.Context, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := fmt.Sprintf(`SELECT key, value FROM persistent_kv WHERE key IN (%s)`, placeholders(len(keys), 0))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any, len(keys))
	for rows.Next() {
		var key string
		var b []byte
		if err := rows.Scan(&key, &b); err != nil {
			return nil, err
		}
		v, err := codec.Decode(b)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}

func (p *persistentNS) Scan(ctx context.Context, pattern string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key FROM persistent_kv WHERE key LIKE $1 ORDER BY key`, pattern+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (p *persistentNS) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM persistent_kv WHERE key = $1`, key)
	return err
}

// volatileNS mirrors persistentNS but additionally supports atomic
// Increment against a native integer column, since a gob blob can't
// be incremented in place by the database. Plain int values written
// through Write/BatchWrite land in that same int_value column, so a
// counter seeded by a batch write and mutated by Increment stays one
// value; reads prefer the gob column and fall back to int_value.
type volatileNS struct{ db *stdsql.DB }

func (v *volatileNS) Write(ctx context.Context, key string, value any) error {
	if n, ok := asInt(value); ok {
		_, err := v.db.ExecContext(ctx,
			`INSERT INTO volatile_kv (key, value, int_value) VALUES ($1, NULL, $2)
			 ON CONFLICT (key) DO UPDATE SET value = NULL, int_value = EXCLUDED.int_value`, key, n)
		return err
	}
	b, err := codec.Encode(value)
	if err != nil {
		return err
	}
	_, err = v.db.ExecContext(ctx,
		`INSERT INTO volatile_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, b)
	return err
}

func (v *volatileNS) Read(ctx context.Context, key string) (any, bool, error) {
	var b []byte
	var n int64
	err := v.db.QueryRowContext(ctx, `SELECT value, int_value FROM volatile_kv WHERE key = $1`, key).Scan(&b, &n)
	if err == stdsql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		return int(n), true, nil
	}
	val, err := codec.Decode(b)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (v *volatileNS) BatchWrite(ctx context.Context, items map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	blobStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO volatile_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`)
	if err != nil {
		return err
	}
	defer blobStmt.Close()

	intStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO volatile_kv (key, value, int_value) VALUES ($1, NULL, $2)
		 ON CONFLICT (key) DO UPDATE SET value = NULL, int_value = EXCLUDED.int_value`)
	if err != nil {
		return err
	}
	defer intStmt.Close()

	for k, val := range items {
		if n, ok := asInt(val); ok {
			if _, err := intStmt.ExecContext(ctx, k, n); err != nil {
				return err
			}
			continue
		}
		b, err := codec.Encode(val)
		if err != nil {
			return err
		}
		if _, err := blobStmt.ExecContext(ctx, k, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (v *volatileNS) BatchRead(ctx context.Context, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := fmt.Sprintf(`SELECT key, value, int_value FROM volatile_kv WHERE key IN (%s)`, placeholders(len(keys), 0))
	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any, len(keys))
	for rows.Next() {
		var key string
		var b []byte
		var n int64
		if err := rows.Scan(&key, &b, &n); err != nil {
			return nil, err
		}
		if b == nil {
			out[key] = int(n)
			continue
		}
		val, err := codec.Decode(b)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, rows.Err()
}

// asInt reports whether v is a plain integer counter value.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// Increment upserts a counter row and returns its new value in one
// round trip.
func (v *volatileNS) Increment(ctx context.Context, key string, delta int) (int, error) {
	var n int64
	err := v.db.QueryRowContext(ctx,
		`INSERT INTO volatile_kv (key, int_value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = NULL, int_value = volatile_kv.int_value + EXCLUDED.int_value
		 RETURNING int_value`, key, delta).Scan(&n)
	return int(n), err
}

func (v *volatileNS) Scan(ctx context.Context, pattern string) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT key FROM volatile_kv WHERE key LIKE $1 ORDER BY key`, pattern+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (v *volatileNS) Delete(ctx context.Context, key string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM volatile_kv WHERE key = $1`, key)
	return err
}

// setsNS backs ready-sets, counted-interviews, and the active-workers
// registry with one row per (key, member) pair.
type setsNS struct{ db *stdsql.DB }

func (s *setsNS) Add(ctx context.Context, key, member string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sets_kv (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, member)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *setsNS) AddMultiple(ctx context.Context, key string, members []string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sets_kv (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, m := range members {
		res, err := stmt.ExecContext(ctx, key, m)
		if err != nil {
			return added, err
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, tx.Commit()
}

func (s *setsNS) Remove(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sets_kv WHERE key = $1 AND member = $2`, key, member)
	return err
}

func (s *setsNS) PopOne(ctx context.Context, key string) (string, bool, error) {
	var member string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM sets_kv WHERE ctid = (SELECT ctid FROM sets_kv WHERE key = $1 LIMIT 1) RETURNING member`, key).Scan(&member)
	if err == stdsql.ErrNoRows {
		return "", false, nil
	}
	return member, err == nil, err
}

func (s *setsNS) PopMultiple(ctx context.Context, key string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM sets_kv WHERE ctid IN (SELECT ctid FROM sets_kv WHERE key = $1 LIMIT $2) RETURNING member`, key, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *setsNS) Members(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member FROM sets_kv WHERE key = $1`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *setsNS) Size(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sets_kv WHERE key = $1`, key).Scan(&n)
	return n, err
}

func (s *setsNS) CheckMembership(ctx context.Context, key string, members []string) ([]bool, error) {
	if len(members) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	query := fmt.Sprintf(`SELECT member FROM sets_kv WHERE key = $1 AND member IN (%s)`, placeholders(len(members), 1))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	present := make(map[string]bool, len(members))
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		present[m] = true
	}
	out := make([]bool, len(members))
	for i, m := range members {
		out[i] = present[m]
	}
	return out, rows.Err()
}

// blobNS stores offloaded FileStore payloads as raw bytes with a
// JSONB metadata sidecar column.
type blobNS struct{ db *stdsql.DB }

func (b *blobNS) PutBlob(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	metaJSON, err := jsonMap(metadata)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO blob_kv (key, data, metadata) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, metadata = EXCLUDED.metadata`,
		key, data, metaJSON)
	return err
}

func (b *blobNS) GetBlob(ctx context.Context, key string) ([]byte, map[string]string, bool, error) {
	var data []byte
	var metaJSON []byte
	err := b.db.QueryRowContext(ctx, `SELECT data, metadata FROM blob_kv WHERE key = $1`, key).Scan(&data, &metaJSON)
	if err == stdsql.ErrNoRows {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	meta, err := parseJSONMap(metaJSON)
	if err != nil {
		return nil, nil, false, err
	}
	return data, meta, true, nil
}

func (b *blobNS) DeleteBlob(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM blob_kv WHERE key = $1`, key)
	return err
}
