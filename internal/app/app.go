package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rpattn/verstore/internal/comparison"
	"github.com/rpattn/verstore/internal/config"
	"github.com/rpattn/verstore/internal/db"
	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/export"
	"github.com/rpattn/verstore/internal/httpapi"
	"github.com/rpattn/verstore/internal/ingestion"
	"github.com/rpattn/verstore/internal/repository"
	"github.com/rpattn/verstore/internal/rollback"
	"github.com/rpattn/verstore/internal/versioning"
)

// App holds the store and every service built on it.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Store      repository.VersionStore
	Logs       repository.IngestionLogRepository
	Versioning *versioning.Engine
	Ingestion  *ingestion.Service
	Rollback   *rollback.Engine
	Comparison *comparison.Engine
	Export     *export.Service

	closers []func() error
}

// New opens the configured store, runs migrations when enabled and wires the
// engines. Callers must Close the app.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if cfg.Migrations.Auto {
		if err := Migrate(cfg, logger); err != nil {
			return nil, err
		}
	}

	if err := a.openStore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.WarnContext(ctx, "redis unreachable, reads will fall through to the store", "addr", cfg.Redis.Addr, "err", err)
		}
		cancel()
		a.Store = repository.NewCachedVersionStore(a.Store, client, cfg.Redis.TTL, logger)
	}

	opts := []versioning.Option{
		versioning.WithIDField(cfg.Ingest.IDField),
		versioning.WithDateFields(cfg.Ingest.DateFields...),
		versioning.WithLogger(logger),
	}
	if a.Logs != nil {
		opts = append(opts, versioning.WithIngestionLog(a.Logs))
	}
	a.Versioning = versioning.NewEngine(a.Store, opts...)
	a.Ingestion = ingestion.NewService(a.Versioning, logger)
	a.Rollback = rollback.NewEngine(a.Store, nil, logger)
	a.Comparison = comparison.NewEngine(a.Store)
	a.Export = export.NewService(a.Store, a.Comparison, export.WithLogger(logger))

	logger.InfoContext(ctx, "store ready", "driver", cfg.Store.Driver, "cache", cfg.Redis.Enabled)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case config.DriverPostgres:
		conn, err := db.NewConnection(ctx, a.Config.Database)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		a.closers = append(a.closers, func() error { conn.Close(); return nil })
		a.Store = repository.NewPostgresVersionStore(conn.Pool)
		a.Logs = repository.NewIngestionLogRepository(conn.Pool)
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, a.Config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		a.closers = append(a.closers, conn.Close)
		a.Store = repository.NewSQLiteVersionStore(conn)
		a.Logs = repository.NewSQLiteIngestionLogRepository(conn)
	case config.DriverMemory:
		a.Store = repository.NewMemoryVersionStore()
		a.Logs = repository.NewMemoryIngestionLogRepository()
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.Store.Driver)
	}
	return nil
}

// Migrate applies the embedded migrations for the configured driver. The
// memory driver has nothing to migrate.
func Migrate(cfg config.Config, logger *slog.Logger) error {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return db.RunPostgresMigrations(cfg.Database.URL("postgres"), logger)
	case config.DriverSQLite:
		return db.RunSQLiteMigrations(cfg.SQLite.Path, logger)
	default:
		return nil
	}
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.Dependencies{
		Store:          a.Store,
		Logs:           a.Logs,
		Ingestion:      a.Ingestion,
		Rollback:       a.Rollback,
		Comparison:     a.Comparison,
		Export:         a.Export,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.Logger,
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
