package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/health-research/backend/pkg/logger"
)

const keyPrefix = "health_agents:result:"

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(ctx context.Context, host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Name() string { return "redis" }

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Set(ctx context.Context, queryHash string, value []byte) error {
	if err := c.client.Set(ctx, keyPrefix+queryHash, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set result cache: %w", err)
	}

	logger.Debug("Result cached", zap.String("query_hash", queryHash), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) Get(ctx context.Context, queryHash string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+queryHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get result cache: %w", err)
	}

	logger.Debug("Result cache hit", zap.String("query_hash", queryHash))
	return data, true, nil
}

// Invalidate removes every cached result, leaving unrelated keys alone.
func (c *Client) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	removed := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Result cache invalidated", zap.Int("removed", removed))
	return nil
}
