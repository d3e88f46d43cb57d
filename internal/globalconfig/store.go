package globalconfig

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/experius/pwa-buildpack/internal/logging"
)

var (
	// ErrInvalidOptions is returned for a store or database configured
	// without a prefix, key function or usable path.
	ErrInvalidOptions = errors.New("globalconfig: invalid options")
	// ErrKeyArity is returned when a key is built from the wrong number
	// of parts.
	ErrKeyArity = errors.New("globalconfig: wrong number of key parts")
)

// KeyFunc turns key parts into the string that identifies a value.
type KeyFunc func(parts ...string) string

// JoinKey is a KeyFunc that joins the parts with a NUL byte.
func JoinKey(parts ...string) string { return strings.Join(parts, "\x00") }

// Options configure a Store.
type Options struct {
	Prefix string  // namespaces every key; required
	Arity  int     // number of parts each key is built from
	Key    KeyFunc // required
}

// Store is a prefix-scoped view of a DB.
type Store struct {
	db   *DB
	opts Options
}

// New returns a store over db.
func New(db *DB, opts Options) (*Store, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("%w: database handle is required", ErrInvalidOptions)
	case opts.Prefix == "":
		return nil, fmt.Errorf("%w: prefix is required", ErrInvalidOptions)
	case opts.Key == nil:
		return nil, fmt.Errorf("%w: key function is required", ErrInvalidOptions)
	case opts.Arity < 0:
		return nil, fmt.Errorf("%w: arity must not be negative", ErrInvalidOptions)
	}
	return &Store{db: db, opts: opts}, nil
}

// Prefix returns the store's key prefix.
func (s *Store) Prefix() string { return s.opts.Prefix }

// MakeKey builds the storage key for parts. A store with arity zero holds a
// single value stored under the prefix itself; otherwise the key is the
// prefix followed by the MD5 hex digest of the key function's result.
func (s *Store) MakeKey(parts ...string) (string, error) {
	if len(parts) != s.opts.Arity {
		return "", fmt.Errorf("%w: %s takes %d, got %d", ErrKeyArity, s.opts.Prefix, s.opts.Arity, len(parts))
	}
	if s.opts.Arity == 0 {
		return s.opts.Prefix, nil
	}
	sum := md5.Sum([]byte(s.opts.Key(parts...)))
	return s.opts.Prefix + hex.EncodeToString(sum[:]), nil
}

// Get decodes the value stored for parts into dst. It reports false when
// nothing is stored.
func (s *Store) Get(ctx context.Context, dst interface{}, parts ...string) (bool, error) {
	key, err := s.MakeKey(parts...)
	if err != nil {
		return false, err
	}
	db, err := s.db.conn(ctx)
	if err != nil {
		return false, err
	}

	var raw string
	err = db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		logging.StoreDebug("%s get: no value for %s", s.opts.Prefix, key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value, encoded as JSON, for parts.
func (s *Store) Set(ctx context.Context, value interface{}, parts ...string) error {
	key, err := s.MakeKey(parts...)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	db, err := s.db.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	logging.StoreDebug("%s set %s", s.opts.Prefix, key)
	return nil
}

// Del removes the value for parts. Removing a missing value is not an error.
func (s *Store) Del(ctx context.Context, parts ...string) error {
	key, err := s.MakeKey(parts...)
	if err != nil {
		return err
	}
	db, err := s.db.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Values returns every value whose key starts with the prefix, in key order.
func (s *Store) Values(ctx context.Context) ([]json.RawMessage, error) {
	db, err := s.db.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT value FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key",
		s.opts.Prefix, s.opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.opts.Prefix, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

// ValuesOf decodes every value of s into T.
func ValuesOf[T any](ctx context.Context, s *Store) ([]T, error) {
	raws, err := s.Values(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s value: %w", s.opts.Prefix, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Clear removes every value whose key starts with the prefix. Other
// prefixes in the same file are untouched.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.db.conn(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		"DELETE FROM kv WHERE substr(key, 1, length(?)) = ?",
		s.opts.Prefix, s.opts.Prefix)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.opts.Prefix, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		logging.Store("cleared %d values under %s", n, s.opts.Prefix)
	}
	return nil
}
