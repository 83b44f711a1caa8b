package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/app"
	"github.com/rpattn/verstore/internal/config"
	"github.com/rpattn/verstore/internal/logging"
)

// loadConfig reads the config and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, &ExitError{Code: ExitCommandError, Message: "failed to load config", Err: err}
	}
	if opts.Driver != "" {
		cfg.Store.Driver = opts.Driver
	}
	if opts.SQLitePath != "" {
		cfg.SQLite.Path = opts.SQLitePath
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &ExitError{Code: ExitCommandError, Message: "invalid config", Err: err}
	}
	return cfg, nil
}

// openApp builds the application for one command invocation.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "invalid log level", Err: err}
	}
	if cfg.ConfigFile != "" {
		logger.DebugContext(ctx, "loaded config", "file", cfg.ConfigFile, "command", cmd.Name())
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError("failed to open store", err)
	}
	return a, nil
}
