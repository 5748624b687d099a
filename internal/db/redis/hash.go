package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/sitesearch/internal/db"
)

// HGet returns one field of a hash. A missing key or field is db.ErrKeyNotFound.
func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	cmd := s.b().Hget().Key(key).Field(field).Build()
	v, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", db.ErrKeyNotFound
		}
		return "", &db.Error{Op: db.OpHGet, Err: err}
	}
	return v, nil
}

// HGetAllMulti fetches all fields for multiple hashes in a single DoMulti round-trip.
// A missing key yields an empty map.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Hgetall().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))

	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = m
	}

	return out, nil
}
