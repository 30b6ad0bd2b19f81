package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// schema. Returns a cleanup function that must be called after tests
// complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	applySchema(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// applySchema creates the strategy_executions table. Mirrors the
// embedded migration in internal/storage/migrations; kept inline here
// because importing that package from an in-package test would cycle.
func applySchema(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	query := `
		CREATE TABLE IF NOT EXISTS strategy_executions (
			execution_id          TEXT PRIMARY KEY,
			strategy_id           TEXT NOT NULL,
			user_id               TEXT NOT NULL,
			started_at            BIGINT NOT NULL,
			completed_at          BIGINT NOT NULL,
			success               BOOLEAN NOT NULL,
			error                 TEXT NOT NULL DEFAULT '',
			transaction_signature TEXT NOT NULL DEFAULT '',
			amount_executed       DOUBLE PRECISION,
			execution_price       DOUBLE PRECISION,
			fees_paid             DOUBLE PRECISION,
			actual_slippage       DOUBLE PRECISION,
			triggered_by          TEXT NOT NULL DEFAULT ''
		)
	`
	_, err := pool.Exec(ctx, query)
	require.NoError(t, err, "failed to create strategy_executions table")
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
