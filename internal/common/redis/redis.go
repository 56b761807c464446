package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/logger"
)

// Client embeds the go-redis client so services can use raw commands
// (Get/Set/Scan/Del) alongside the idempotency helpers.
type Client struct {
	*redis.Client
	logger *logger.Logger
}

func Connect(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Connected to Redis at %s", cfg.Addr)

	return &Client{Client: rdb, logger: log}, nil
}

// CheckIdempotency reports whether the key has been marked as seen.
func (c *Client) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	n, err := c.Exists(ctx, "idempotency:"+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

// SetIdempotency marks the key as seen for the given TTL.
func (c *Client) SetIdempotency(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.Set(ctx, "idempotency:"+key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return nil
}
