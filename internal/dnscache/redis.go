package dnscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mailverify:dns:"

// RedisStore shares DNS answers between processes through Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the answer stored under key. ok is false on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (Answer, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Answer{}, false, nil
	}
	if err != nil {
		return Answer{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var a Answer
	if err := json.Unmarshal(data, &a); err != nil {
		return Answer{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return a, true, nil
}

// Set stores a under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, a Answer, ttl time.Duration) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
