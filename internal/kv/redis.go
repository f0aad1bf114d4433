package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs Store with a Redis client. Prefix listing uses SCAN with
// a cursor encoded as the Redis scan cursor string.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	ttl := opts.TTL
	if ttl == 0 && !opts.ExpiresAt.IsZero() {
		ttl = time.Until(opts.ExpiresAt)
		if ttl <= 0 {
			return fmt.Errorf("kv put %q: expiresAt already elapsed", key)
		}
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix, cursor string, limit int) (ListResult, error) {
	if limit <= 0 {
		limit = 1000
	}

	var startCursor uint64
	if cursor != "" {
		var err error
		startCursor, err = parseCursor(cursor)
		if err != nil {
			return ListResult{}, fmt.Errorf("kv list %q: %w", prefix, err)
		}
	}

	keys, nextCursor, err := s.client.Scan(ctx, startCursor, prefix+"*", int64(limit)).Result()
	if err != nil {
		return ListResult{}, fmt.Errorf("kv list %q: %w", prefix, err)
	}

	sort.Strings(keys)

	return ListResult{
		Keys:       keys,
		NextCursor: formatCursor(nextCursor),
		Complete:   nextCursor == 0,
	}, nil
}

func parseCursor(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func formatCursor(c uint64) string {
	if c == 0 {
		return ""
	}
	return fmt.Sprintf("%d", c)
}
