// Package state keeps small per-client JSON records in Redis under a version
// envelope. Older records are upgraded on read by a chain of migrations.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("state not found")

// ErrConflict means other writers kept changing the record during Update.
var ErrConflict = errors.New("state changed concurrently")

// updateAttempts bounds the optimistic retries of Update.
const updateAttempts = 5

// Migration upgrades the data of one version to the next.
type Migration func(data json.RawMessage) (json.RawMessage, error)

type envelope struct {
	V    *int            `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Store holds records of type T. Its current version is the number of
// migrations: migrations[i] upgrades version i to i+1, and records written
// before the envelope existed are version 0.
type Store[T any] struct {
	rdb        redis.UniversalClient
	kind       string
	ttl        time.Duration
	migrations []Migration
}

func New[T any](rdb redis.UniversalClient, kind string, ttl time.Duration, migrations ...Migration) *Store[T] {
	return &Store[T]{rdb: rdb, kind: kind, ttl: ttl, migrations: migrations}
}

func (s *Store[T]) Version() int {
	return len(s.migrations)
}

func (s *Store[T]) Key(id string) string {
	return fmt.Sprintf("otbox:%s:%s", s.kind, id)
}

func (s *Store[T]) Load(ctx context.Context, id string) (T, error) {
	var v T

	raw, err := s.rdb.Get(ctx, s.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("reading %s[%s]: %w", s.kind, id, err)
	}

	if v, err = s.decode(raw); err != nil {
		return v, fmt.Errorf("%s[%s]: %w", s.kind, id, err)
	}
	return v, nil
}

// Save writes v at the current version and restarts its expiry.
func (s *Store[T]) Save(ctx context.Context, id string, v T) error {
	raw, err := s.encode(v)
	if err != nil {
		return fmt.Errorf("%s[%s]: %w", s.kind, id, err)
	}

	if err := s.rdb.Set(ctx, s.Key(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s[%s]: %w", s.kind, id, err)
	}
	return nil
}

// Update reads the record, applies fn and writes the result back in one
// WATCH/MULTI transaction, retrying when another writer changed the key in
// between. fn sees the zero value and found=false for a missing record and
// may run more than once. An error from fn aborts without writing.
func (s *Store[T]) Update(ctx context.Context, id string, fn func(v *T, found bool) error) (T, error) {
	key := s.Key(id)

	var out T
	txf := func(tx *redis.Tx) error {
		var v T
		found := true

		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			found = false
		case err != nil:
			return fmt.Errorf("reading %s[%s]: %w", s.kind, id, err)
		default:
			if v, err = s.decode(raw); err != nil {
				return fmt.Errorf("%s[%s]: %w", s.kind, id, err)
			}
		}

		if err := fn(&v, found); err != nil {
			return err
		}

		raw, err = s.encode(v)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", s.kind, id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		out = v
		return nil
	}

	for i := 0; i < updateAttempts; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, fmt.Errorf("updating %s[%s]: %w", s.kind, id, ErrConflict)
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.Key(id)).Err(); err != nil {
		return fmt.Errorf("deleting %s[%s]: %w", s.kind, id, err)
	}
	return nil
}

func (s *Store[T]) decode(raw []byte) (T, error) {
	var v T

	data, err := s.upgrade(raw)
	if err != nil {
		return v, fmt.Errorf("upgrading: %w", err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding: %w", err)
	}
	return v, nil
}

func (s *Store[T]) encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}

	ver := s.Version()
	return json.Marshal(envelope{V: &ver, Data: data})
}

func (s *Store[T]) upgrade(raw []byte) (json.RawMessage, error) {
	var env envelope
	ver, data := 0, json.RawMessage(raw)
	if err := json.Unmarshal(raw, &env); err == nil && env.V != nil {
		ver, data = *env.V, env.Data
	}

	if ver > s.Version() {
		return nil, fmt.Errorf("version %d is newer than %d", ver, s.Version())
	}

	for ; ver < s.Version(); ver++ {
		next, err := s.migrations[ver](data)
		if err != nil {
			return nil, fmt.Errorf("migrating from version %d: %w", ver, err)
		}
		data = next
	}
	return data, nil
}
