package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Client wraps the redis connection and records every operation in metrics.
type Client struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewClient(ctx context.Context, opts Options, m *metrics.Metrics, logger zerolog.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("Connected to Redis")

	return &Client{
		rdb:     rdb,
		metrics: m,
		logger:  logger.With().Str("component", "redis").Logger(),
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.observe("ping", c.rdb.Ping(ctx).Err())
}

func (c *Client) HSet(ctx context.Context, key string, field string, value interface{}) error {
	return c.observe("hset", c.rdb.HSet(ctx, key, field, value).Err())
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.observe("hdel", c.rdb.HDel(ctx, key, fields...).Err())
}

func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.HLen(ctx, key).Result()
	return n, c.observe("hlen", err)
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.observe("expire", c.rdb.Expire(ctx, key, expiration).Err())
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	return n, c.observe("incr", err)
}

// Get returns redis.Nil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.observe("get", nil)
		return "", err
	}
	return v, c.observe("get", err)
}

func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.observe("publish", c.rdb.Publish(ctx, channel, message).Err())
}

func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return c.rdb.PSubscribe(ctx, patterns...)
}

func (c *Client) observe(operation string, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.IncRedisOperation(operation, status)
	return err
}
