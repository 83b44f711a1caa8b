package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// RunPostgresMigrations applies the embedded Postgres migrations. databaseURL
// may use the postgres:// or postgresql:// scheme.
func RunPostgresMigrations(databaseURL string, logger *slog.Logger) error {
	return runMigrations("migrations/postgres", postgresMigrateURL(databaseURL), logger)
}

// RunSQLiteMigrations applies the embedded SQLite migrations to the file at path.
func RunSQLiteMigrations(path string, logger *slog.Logger) error {
	return runMigrations("migrations/sqlite", "sqlite3://"+path, logger)
}

func postgresMigrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

func runMigrations(dir string, databaseURL string, logger *slog.Logger) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := iofs.New(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if closeErr := errors.Join(srcErr, dbErr); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migrator: %w", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("migrations already applied", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("applied migrations", "dir", dir, "version", version, "dirty", dirty)
	return nil
}
