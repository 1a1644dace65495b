package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/redis/go-redis/v9"
)

// lockValue is the payload stored under each lock key; only presence matters.
const lockValue = "locked"

// RedisStore keeps locks as Redis keys created with SET NX EX.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis parses a redis:// URL and returns a RedisStore for it.
func DialRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: bad redis url: %v", shared.ErrInvalidConfig, err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

func (s *RedisStore) SetNX(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, name, lockValue, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrLockUnavailable, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, name).Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLockUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
