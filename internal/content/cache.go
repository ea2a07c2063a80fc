package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/course-engine/internal/models"
)

const catalogKeyPrefix = "course-engine:catalog:"

// CachedSource keeps the joined catalog in Redis so that restarts and
// multiple instances do not hammer the upstream. Redis failures fall through
// to the wrapped source.
type CachedSource struct {
	source Source
	client *redis.Client
	key    string
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedSource wraps source with a Redis cache entry named name
func NewCachedSource(source Source, client *redis.Client, name string, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		client: client,
		key:    catalogKeyPrefix + name,
		ttl:    ttl,
	}
}

// NewRedisClient connects to Redis and verifies connectivity
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// LoadCatalog serves from cache, or loads once for all concurrent callers
func (c *CachedSource) LoadCatalog(ctx context.Context) ([]models.Course, error) {
	if courses, ok := c.get(ctx); ok {
		slog.Debug("catalog served from cache", "key", c.key)
		return courses, nil
	}

	v, err, shared := c.group.Do(c.key, func() (interface{}, error) {
		courses, err := c.source.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, courses)
		return courses, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("catalog load shared between callers", "key", c.key)
	}
	return v.([]models.Course), nil
}

// Invalidate removes all cached catalog entries
func (c *CachedSource) Invalidate(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, catalogKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan catalog keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete catalog keys: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	slog.Info("catalog cache invalidated", "keys_deleted", deleted)
	return nil
}

// HealthCheck verifies Redis connectivity
func (c *CachedSource) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CachedSource) get(ctx context.Context) ([]models.Course, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("catalog cache read failed", "key", c.key, "error", err)
		}
		return nil, false
	}

	var courses []models.Course
	if err := json.Unmarshal(data, &courses); err != nil {
		slog.Warn("discarding corrupt catalog cache entry", "key", c.key, "error", err)
		return nil, false
	}
	return courses, true
}

func (c *CachedSource) set(ctx context.Context, courses []models.Course) {
	data, err := json.Marshal(courses)
	if err != nil {
		slog.Warn("failed to encode catalog for cache", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		slog.Warn("catalog cache write failed", "key", c.key, "error", err)
	}
}
