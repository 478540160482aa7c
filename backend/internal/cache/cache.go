package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"circlenet/backend/internal/metrics"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps Redis for cached reads, counters and one-time codes
type Client struct {
	rdb     *redis.Client
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Connect parses a redis:// URL, connects and pings
func Connect(ctx context.Context, url string, collector *metrics.Collector) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.NewCacheFailed("parse url", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.NewCacheFailed("ping", err)
	}

	return New(rdb, collector), nil
}

// New wraps an existing go-redis client
func New(rdb *redis.Client, collector *metrics.Collector) *Client {
	return &Client{rdb: rdb, metrics: collector, logger: logger.Named("cache")}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetJSON loads key into dest. It reports false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.ObserveCache(false)
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewCacheFailed("get "+key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next set
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.metrics.ObserveCache(false)
		return false, nil
	}
	c.metrics.ObserveCache(true)
	return true, nil
}

// SetJSON stores v under key for ttl
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return apperrors.NewCacheFailed("set "+key, err)
	}
	return nil
}

// Version returns the current generation number of a namespace. Keys built
// with it go stale as soon as the namespace is bumped.
func (c *Client) Version(ctx context.Context, namespace string) (int64, error) {
	v, err := c.rdb.Get(ctx, versionKey(namespace)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewCacheFailed("get version", err)
	}
	return v, nil
}

// Bump invalidates every key built from the namespace's current version
func (c *Client) Bump(ctx context.Context, namespace string) error {
	if err := c.rdb.Incr(ctx, versionKey(namespace)).Err(); err != nil {
		return apperrors.NewCacheFailed("bump version", err)
	}
	return nil
}

func versionKey(namespace string) string {
	return "version:" + namespace
}
