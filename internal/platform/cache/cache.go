// Package cache provides the Redis client shared by device storage and
// cross-instance notifications.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/praxis/internal/platform/config"
)

const clientName = "praxis"

// Cache wraps a Redis client.
type Cache struct {
	Client *redis.Client
}

// ParseURL validates a Redis connection URL and applies client defaults.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}
	return opts, nil
}

// New creates a client and checks that the server answers.
func New(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	opts, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB)
	return &Cache{Client: client}, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// Ping verifies the cache connection is alive. It backs the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
