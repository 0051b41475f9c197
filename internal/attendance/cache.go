package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReportCache keeps class reports as JSON strings with a TTL.
type RedisReportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisReportCache creates a cache under "classroll:report:" keys.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisReportCache{client: client, prefix: "classroll:report:", ttl: ttl}
}

func (c *RedisReportCache) key(sessionID int64) string {
	return c.prefix + strconv.FormatInt(sessionID, 10)
}

// Get returns nil, nil on a miss.
func (c *RedisReportCache) Get(ctx context.Context, sessionID int64) (*Report, error) {
	raw, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *RedisReportCache) Put(ctx context.Context, report Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(report.Session.ID), raw, c.ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context, sessionID int64) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
