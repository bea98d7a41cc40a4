package transit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a DurationStore shared across API replicas.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ DurationStore = (*RedisStore)(nil)

// NewRedisStore creates a store writing keys under prefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get reads a cached duration. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (int, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	minutes, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return minutes, true, nil
}

// Set writes a duration with ttl.
func (s *RedisStore) Set(ctx context.Context, key string, minutes int, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, strconv.Itoa(minutes), ttl).Err()
}
