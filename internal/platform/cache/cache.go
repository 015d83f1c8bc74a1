// Package cache provides an optional Redis-backed read cache for the
// admin surfaces. Stats aggregation scans the whole task table, so the
// result is held for a short TTL; a nil *StatsCache disables caching
// entirely and callers fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jparker/dispatch-api/internal/task"
	"github.com/redis/go-redis/v9"
)

const statsKey = "dispatch:task_stats"

// StatsCache caches task statistics in Redis with a short TTL.
type StatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatsCache creates a StatsCache against the given Redis address.
// It pings the server once to fail fast on misconfiguration.
func NewStatsCache(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*StatsCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &StatsCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "stats_cache"),
	}, nil
}

// Get returns the cached stats, or (nil, false) on a miss.
// Cache errors are logged and reported as misses; the cache is an
// optimization, never a source of failure.
func (c *StatsCache) Get(ctx context.Context) (*task.TaskStats, bool) {
	val, err := c.rdb.Get(ctx, statsKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("failed to read cached stats", "error", err)
		}
		return nil, false
	}

	var stats task.TaskStats
	if err := json.Unmarshal(val, &stats); err != nil {
		c.logger.Warn("failed to unmarshal cached stats", "error", err)
		return nil, false
	}
	return &stats, true
}

// Set stores the stats under the configured TTL.
func (c *StatsCache) Set(ctx context.Context, stats *task.TaskStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn("failed to marshal stats for cache", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, statsKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache stats", "error", err)
	}
}

// Invalidate drops the cached stats, used after bulk cleanup so the
// next read reflects the deletions.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, statsKey).Err(); err != nil {
		c.logger.Warn("failed to invalidate cached stats", "error", err)
	}
}

// Close releases the underlying Redis connection.
func (c *StatsCache) Close() error {
	return c.rdb.Close()
}
