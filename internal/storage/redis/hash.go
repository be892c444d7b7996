package redis

import (
	"context"
	"fmt"

	"github.com/protomerlab/protomer/internal/storage"
)

// Op constants map to Redis command names for error context.
const (
	opHSet    = "HSET"
	opHGetAll = "HGETALL"
	opDel     = "DEL"
	opScan    = "SCAN"
)

// Hash commands back the run ledger: run state lives in one hash per
// run, step events in a sibling hash with one field per step. Every
// error names the key so a failed ledger write points at its run.

// HSet sets fields on the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &storage.Error{Op: opHSet, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return nil
}

// HGetAll returns every field of the hash at key. A missing key yields
// an empty map, which the ledger maps to its own not-found error.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &storage.Error{Op: opHGetAll, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return m, nil
}

// Del removes the key and whatever hangs off it.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.do(ctx, s.b().Del().Key(key).Build()).Error(); err != nil {
		return &storage.Error{Op: opDel, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return nil
}

// Scan walks the keyspace and returns keys matching pattern. Used by
// run listing, which tolerates the weak ordering SCAN gives.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		res, err := s.do(ctx, s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()).AsScanEntry()
		if err != nil {
			return nil, &storage.Error{Op: opScan, Err: fmt.Errorf("pattern %s: %w", pattern, err)}
		}
		keys = append(keys, res.Elements...)
		if cursor = res.Cursor; cursor == 0 {
			return keys, nil
		}
	}
}
