package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Open connects to Postgres, retrying while the server comes up.
func Open(dsn string, attempts int, wait time.Duration, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 1; i <= attempts; i++ {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		logger.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("waiting for database")
		time.Sleep(wait)
	}
	db.Close()
	return nil, fmt.Errorf("ping database: %w", err)
}

func newMigrator(dsn, dir string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), dsn)
	if err != nil {
		return nil, fmt.Errorf("migration init: %w", err)
	}
	return m, nil
}

// MigrateUp applies pending migrations. It reports false when the schema
// was already current.
func MigrateUp(dsn, dir string) (bool, error) {
	m, err := newMigrator(dsn, dir)
	if err != nil {
		return false, err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("migration up: %w", err)
	}
	return true, nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(dsn, dir string) error {
	m, err := newMigrator(dsn, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down: %w", err)
	}
	return nil
}
