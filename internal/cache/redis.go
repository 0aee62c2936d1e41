// Package cache provides the Redis-backed current-version pointer cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// pointerTTL bounds how long a stale pointer can survive a missed
// invalidation. Reads verify against storage anyway.
const pointerTTL = 24 * time.Hour

// pointerData is the cached identity of a document's current version.
type pointerData struct {
	VersionID     int64     `json:"version_id"`
	VersionNumber int       `json:"version_number"`
	CachedAt      time.Time `json:"cached_at"`
}

// RedisCache caches the current-version pointer per document.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis from a URL and verifies the connection.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "current:",
	}, nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "current:",
	}
}

func (c *RedisCache) key(documentID int64) string {
	return c.prefix + strconv.FormatInt(documentID, 10)
}

// GetCurrent returns the cached pointer for a document. The third return
// value reports whether a pointer was present.
func (c *RedisCache) GetCurrent(ctx context.Context, documentID int64) (int64, int, bool, error) {
	jsonData, err := c.client.Get(ctx, c.key(documentID)).Result()
	if err == redis.Nil {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("get current pointer: %w", err)
	}

	var data pointerData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return 0, 0, false, fmt.Errorf("unmarshal current pointer: %w", err)
	}
	return data.VersionID, data.VersionNumber, true, nil
}

// SetCurrent stores the pointer for a document's current version.
func (c *RedisCache) SetCurrent(ctx context.Context, documentID, versionID int64, versionNumber int) error {
	data := pointerData{
		VersionID:     versionID,
		VersionNumber: versionNumber,
		CachedAt:      time.Now(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal current pointer: %w", err)
	}

	if err := c.client.Set(ctx, c.key(documentID), jsonData, pointerTTL).Err(); err != nil {
		return fmt.Errorf("set current pointer: %w", err)
	}
	return nil
}

// Invalidate drops the pointer for a document.
func (c *RedisCache) Invalidate(ctx context.Context, documentID int64) error {
	if err := c.client.Del(ctx, c.key(documentID)).Err(); err != nil {
		return fmt.Errorf("invalidate current pointer: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
