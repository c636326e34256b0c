package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salmontrack/internal/common"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const stateLockKey = "salmontrack:lock"

// SharedLock serialises updates across processes. The returned func releases the lock.
type SharedLock interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RedisLock holds a redis lock around each store update
type RedisLock struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLock(rdb redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLock) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
	}
	lock, err := l.client.Obtain(ctx, fmt.Sprintf("%s:%s", stateLockKey, key), l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, common.NewStorageError("state busy", err)
	} else if err != nil {
		return nil, common.NewStorageError("obtain state lock", err)
	}
	return func() {
		// the lock expires on its own if release fails
		_ = lock.Release(context.Background())
	}, nil
}
