package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salmontrack/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "salmontrack"

type CacheService interface {
	// Snapshot caching
	GetSnapshot(ctx context.Context, token string) (*models.RawSnapshot, error)
	SetSnapshot(ctx context.Context, token string, snapshot *models.RawSnapshot, ttl time.Duration) error
	DeleteSnapshot(ctx context.Context, token string) error

	// Dashboard caching
	GetDashboard(ctx context.Context) (*models.Dashboard, error)
	SetDashboard(ctx context.Context, dashboard *models.Dashboard, ttl time.Duration) error
	DeleteDashboard(ctx context.Context) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Cache invalidation
	InvalidateAllCache(ctx context.Context) error
	Ping(ctx context.Context) error
}

// NewRedisClient builds a client from an address that may carry a redis:// scheme
func NewRedisClient(addr, password string, db int, logger logrus.FieldLogger) *redis.Client {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.WithField("address", parsedAddr).WithError(pingErr).Warn("redis ping failed on initialization")
	} else {
		logger.WithField("address", parsedAddr).Debug("redis connection established")
	}
	return client
}

type redisCacheService struct {
	client redis.UniversalClient
}

func NewRedisCacheService(client redis.UniversalClient) CacheService {
	return &redisCacheService{client: client}
}

func snapshotKey(token string) string {
	return fmt.Sprintf("%s:snapshot:%s", keyPrefix, token)
}

func dashboardKey() string {
	return fmt.Sprintf("%s:dashboard", keyPrefix)
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyPrefix, key)
}

func (r *redisCacheService) GetSnapshot(ctx context.Context, token string) (*models.RawSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}
	return models.DecodeRawSnapshot(data)
}

func (r *redisCacheService) SetSnapshot(ctx context.Context, token string, snapshot *models.RawSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, snapshotKey(token), data, ttl).Err()
}

func (r *redisCacheService) DeleteSnapshot(ctx context.Context, token string) error {
	return r.client.Del(ctx, snapshotKey(token)).Err()
}

func (r *redisCacheService) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	data, err := r.client.Get(ctx, dashboardKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var dashboard models.Dashboard
	if err := json.Unmarshal(data, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

func (r *redisCacheService) SetDashboard(ctx context.Context, dashboard *models.Dashboard, ttl time.Duration) error {
	data, err := json.Marshal(dashboard)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, dashboardKey(), data, ttl).Err()
}

func (r *redisCacheService) DeleteDashboard(ctx context.Context) error {
	return r.client.Del(ctx, dashboardKey()).Err()
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := rateLimitKey(key)
	count, err := r.client.Incr(ctx, cacheKey).Result()
	if err != nil {
		return false, err
	}

	// Set expiry on first request
	if count == 1 {
		r.client.Expire(ctx, cacheKey, window)
	}

	return count > int64(limit), nil
}

func (r *redisCacheService) InvalidateAllCache(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, keyPrefix+":*").Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// noopCacheService is used when no redis address is configured; every read is a miss
type noopCacheService struct{}

func NewNoopCacheService() CacheService {
	return noopCacheService{}
}

func (noopCacheService) GetSnapshot(ctx context.Context, token string) (*models.RawSnapshot, error) {
	return nil, nil
}

func (noopCacheService) SetSnapshot(ctx context.Context, token string, snapshot *models.RawSnapshot, ttl time.Duration) error {
	return nil
}

func (noopCacheService) DeleteSnapshot(ctx context.Context, token string) error { return nil }

func (noopCacheService) GetDashboard(ctx context.Context) (*models.Dashboard, error) {
	return nil, nil
}

func (noopCacheService) SetDashboard(ctx context.Context, dashboard *models.Dashboard, ttl time.Duration) error {
	return nil
}

func (noopCacheService) DeleteDashboard(ctx context.Context) error { return nil }

func (noopCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func (noopCacheService) InvalidateAllCache(ctx context.Context) error { return nil }

func (noopCacheService) Ping(ctx context.Context) error { return nil }
