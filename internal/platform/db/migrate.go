package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations applies pending schema migrations from the given directory.
// Safe to call repeatedly; only pending migrations are executed.
func RunMigrations(dsn, migrationsDir string, logger *slog.Logger) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("platform/db: open sql database: %w", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("platform/db: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsDir), "postgres", driver)
	if err != nil {
		return fmt.Errorf("platform/db: migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil && logger != nil {
			logger.Warn("close migration source", slog.Any("error", srcErr))
		}
		if dbErr != nil && logger != nil {
			logger.Warn("close migration database", slog.Any("error", dbErr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Info("database schema up to date")
			}
			return nil
		}
		return fmt.Errorf("platform/db: apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	if logger != nil {
		logger.Info("applied migrations", slog.Uint64("version", uint64(version)))
	}
	return nil
}
