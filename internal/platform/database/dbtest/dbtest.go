// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/praxis/internal/platform/config"
	"github.com/p-n-ai/praxis/internal/platform/database"
)

// Integration reports whether container-backed tests are enabled.
func Integration(t testing.TB) bool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
		return false
	}
	if os.Getenv("PRAXIS_INTEGRATION") != "1" {
		t.Skip("set PRAXIS_INTEGRATION=1 to run container-backed tests")
		return false
	}
	return true
}

// NewPool starts postgres and returns a connected pool. The container is
// removed when the test ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	Integration(t)

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("praxis"),
		postgres.WithUsername("praxis"),
		postgres.WithPassword("praxis"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	db, err := database.New(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 4, MinConns: 1})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(db.Close)
	return db.Pool
}
