package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsTable = "deploy_queue_schema_migrations"

// migrateLogger adapts slog to migrate.Logger so migration progress flows
// through the same structured sink as the rest of the tool.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }

func newMigrate(db *sql.DB, logger *slog.Logger) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("%w: postgres driver: %w", ErrMigrationFailed, err)
	}

	source, err := iofs.New(Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("%w: embedded migration source: %w", ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("%w: migrate instance: %w", ErrMigrationFailed, err)
	}

	m.Log = &migrateLogger{logger: logger}

	return m, nil
}

// Migrate applies all pending schema migrations. migrate.ErrNoChange is
// treated as success: an already-current schema is not a failure.
func (s *Store) Migrate() error {
	m, err := newMigrate(s.db, s.logger)
	if err != nil {
		return err
	}
	defer closeMigrate(m, s.logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return nil
}

// MigrateDown rolls back the single most recently applied migration.
func (s *Store) MigrateDown() error {
	m, err := newMigrate(s.db, s.logger)
	if err != nil {
		return err
	}
	defer closeMigrate(m, s.logger)

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return nil
}

// MigrationVersion reports the currently applied schema version and whether
// the last migration left the schema dirty (a prior run failed mid-way).
func (s *Store) MigrationVersion() (version uint, dirty bool, err error) {
	m, err := newMigrate(s.db, s.logger)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m, s.logger)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return version, dirty, nil
}

// MigrateDrop drops every table in the connected database's current schema,
// not only the ones the migrations created. Intended for local development
// against a disposable database.
func (s *Store) MigrateDrop() error {
	m, err := newMigrate(s.db, s.logger)
	if err != nil {
		return err
	}
	defer closeMigrate(m, s.logger)

	if err := m.Drop(); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return nil
}

func closeMigrate(m *migrate.Migrate, logger *slog.Logger) {
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		logger.Warn("migrate close reported errors", "source_error", sourceErr, "db_error", dbErr)
	}
}
