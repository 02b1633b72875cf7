package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increment is one counter bump with the TTL it must carry afterwards.
type Increment struct {
	Key string
	TTL time.Duration
}

// Store is the counter backend. Each Increment must be atomic per key; a batch is applied as one transaction.
type Store interface {
	// Counts returns the value of each key, 0 for missing keys.
	Counts(ctx context.Context, keys []string) ([]int64, error)
	// Increment bumps every key, sets its TTL and returns the new values in order.
	Increment(ctx context.Context, incs []Increment) ([]int64, error)
	// Scan calls fn with batches of keys matching pattern until exhausted or fn errors.
	Scan(ctx context.Context, pattern string, fn func(keys []string) error) error
	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys []string) (int64, error)
	Ping(ctx context.Context) error
}

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 500

// RedisStore implements Store over any go-redis client (single node, sentinel or cluster).
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps client. Returns an error if client is nil.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) Counts(ctx context.Context, keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: mget: %w", err)
	}
	out := make([]int64, len(keys))
	for i, v := range vals {
		n, err := parseRedisInt64(v)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: key %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

func (s *RedisStore) Increment(ctx context.Context, incs []Increment) ([]int64, error) {
	if len(incs) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(incs))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, inc := range incs {
			cmds[i] = pipe.Incr(ctx, inc.Key)
			pipe.Expire(ctx, inc.Key, inc.TTL)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: increment: %w", err)
	}
	out := make([]int64, len(incs))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) Delete(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: del: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseRedisInt64(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case []byte:
		return strconv.ParseInt(string(val), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
