// Package cachetest starts a throwaway Redis container for integration tests.
package cachetest

import (
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/p-n-ai/praxis/internal/platform/cache"
	"github.com/p-n-ai/praxis/internal/platform/config"
)

// NewClient starts redis and returns a connected client. The container is
// removed when the test ends.
func NewClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("PRAXIS_INTEGRATION") != "1" {
		t.Skip("set PRAXIS_INTEGRATION=1 to run container-backed tests")
	}

	ctx := t.Context()
	ctr, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}

	url, err := ctr.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	c, err := cache.New(ctx, config.CacheConfig{URL: url})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c.Client
}
