package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/app"
	"github.com/rpattn/verstore/internal/logging"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "invalid log level", Err: err}
			}
			if err := app.Migrate(cfg, logger); err != nil {
				return WrapExitError("migration failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Store.Driver)
			return nil
		},
	}
}
