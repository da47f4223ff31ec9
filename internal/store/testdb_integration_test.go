//go:build integration

package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/deploy-queue/deployqueue/internal/config"
)

const containerStartupTimeout = 120 * time.Second

// newTestStore starts a disposable PostgreSQL container, applies every
// migration, and returns a ready-to-use Store. Adapted from the teacher's
// config.SetupTestDatabase/RunTestMigrations, but pointed at this module's
// own embedded migrations via Store.Migrate rather than a file:// source
// shared across sibling packages.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("deploy_queue_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	t.Setenv("DEPLOY_QUEUE_DATABASE_URL", connStr)
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(ctx, cfg, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})

	require.NoError(t, s.Migrate())

	return s
}
