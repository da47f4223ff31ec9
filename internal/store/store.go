// Package store is the sole component permitted to hold a raw SQL
// connection or issue raw query strings; every other package talks to it
// through the typed operations below.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/deploy-queue/deployqueue/internal/config"
)

const postgresDriver = "postgres"

// Store wraps a pooled connection and exposes every operation the
// coordinator, heartbeat, and reporting components need.
type Store struct {
	db             *sql.DB
	logger         *slog.Logger
	slowQueryAfter time.Duration
}

// Open establishes the connection pool, enforcing the connect/acquire/idle
// deadlines and retrying with exponential backoff until AcquireTimeout is
// exhausted. It does not run migrations and does not read
// cfg.SkipMigrations; callers run Migrate explicitly.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open(postgresDriver, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := pingWithRetry(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, slowQueryAfter: config.SlowQueryThreshold}, nil
}

// pingWithRetry retries PingContext with exponential backoff (starting at
// config.BusyRetry, doubling each attempt) until config.AcquireTimeout
// elapses. A Postgres still coming up under docker-compose or a CI service
// container routinely refuses connections for a few seconds; one Ping
// failure should not be fatal.
func pingWithRetry(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	deadline := time.Now().Add(config.AcquireTimeout)
	wait := config.BusyRetry

	var lastErr error
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, config.ConnectionTimeout)
		err := db.PingContext(pingCtx)
		cancel()

		if err == nil {
			return nil
		}

		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %w", ErrConnectFailed, lastErr)
		}

		logger.Warn("store: connection attempt failed, retrying",
			"attempt", attempt, "error", err, "wait", wait)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConnectFailed, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
	}
}

// HealthCheck reports whether the pool can still reach Postgres.
func (s *Store) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectionTimeout)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return nil
}

// Close releases the pool. Safe to call multiple times.
func (s *Store) Close() error {
	return s.db.Close()
}

// logSlowQuery warns when an operation exceeds the configured threshold,
// mirroring the teacher's correlation-view instrumentation.
func (s *Store) logSlowQuery(op string, start time.Time, args ...any) {
	duration := time.Since(start)
	if duration <= s.slowQueryAfter {
		return
	}

	fields := append([]any{"op", op, "duration", duration}, args...)
	s.logger.Warn("store: slow query", fields...)
}
