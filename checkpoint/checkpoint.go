// Package checkpoint stores the next page to compare of each table so that
// runs started over HTTP can resume after an interruption.
package checkpoint

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "recon:checkpoint"

// RedisStore keeps one hash per table holding the next page and the page
// size it counts in.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ reconcile.Cursor = (*RedisStore)(nil)

// NewRedisStore returns a store writing keys under prefix. A zero ttl keeps
// checkpoints until they are cleared.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(table string) string {
	return s.prefix + ":" + table
}

const (
	fieldNextPage = "next_page"
	fieldPageSize = "page_size"
)

func (s *RedisStore) Load(ctx context.Context, table string) (reconcile.Checkpoint, error) {
	vals, err := s.client.HGetAll(ctx, s.key(table)).Result()
	if err != nil {
		return reconcile.Checkpoint{}, errors.Wrapf(err, "error loading checkpoint of %s", table)
	}
	if len(vals) == 0 {
		return reconcile.Checkpoint{}, nil
	}
	nextPage, err := strconv.Atoi(vals[fieldNextPage])
	if err != nil || nextPage < 0 {
		return reconcile.Checkpoint{}, errors.Newf("invalid checkpoint page %q for %s", vals[fieldNextPage], table)
	}
	pageSize, err := strconv.Atoi(vals[fieldPageSize])
	if err != nil || pageSize <= 0 {
		return reconcile.Checkpoint{}, errors.Newf("invalid checkpoint page size %q for %s", vals[fieldPageSize], table)
	}
	return reconcile.Checkpoint{NextPage: nextPage, PageSize: pageSize}, nil
}

func (s *RedisStore) Save(ctx context.Context, table string, cp reconcile.Checkpoint) error {
	key := s.key(table)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldNextPage, cp.NextPage, fieldPageSize, cp.PageSize)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	}); err != nil {
		return errors.Wrapf(err, "error saving checkpoint of %s", table)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, table string) error {
	if err := s.client.Del(ctx, s.key(table)).Err(); err != nil {
		return errors.Wrapf(err, "error clearing checkpoint of %s", table)
	}
	return nil
}

// MemoryStore keeps checkpoints for the lifetime of the process.
type MemoryStore struct {
	mu struct {
		sync.Mutex
		cps map[string]reconcile.Checkpoint
	}
}

var _ reconcile.Cursor = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.mu.cps = make(map[string]reconcile.Checkpoint)
	return s
}

func (s *MemoryStore) Load(ctx context.Context, table string) (reconcile.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.cps[table], nil
}

func (s *MemoryStore) Save(ctx context.Context, table string, cp reconcile.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.cps[table] = cp
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mu.cps, table)
	return nil
}
