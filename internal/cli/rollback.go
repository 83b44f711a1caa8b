package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/domain"
)

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <entity-id> <version>",
		Short: "Restore an earlier version's fields as a new version",
		Long: `Restore the fields of an earlier version by appending a new version.

History is never rewritten. Rolling back to the latest version writes
nothing and exits successfully.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(cmd, rootOpts, args[0], args[1])
		},
	}
}

type rollbackOutput struct {
	EntityID   string `json:"entityId"`
	Target     int    `json:"target"`
	NewVersion int    `json:"newVersion,omitempty"`
	NoOp       bool   `json:"noop"`
	Message    string `json:"message,omitempty"`
}

func runRollback(cmd *cobra.Command, opts *RootOptions, entityID, rawTarget string) error {
	target, err := parseVersionArg(rawTarget)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := rollbackOutput{EntityID: entityID, Target: target}
	newVersion, err := a.Rollback.Rollback(ctx, entityID, target)
	switch {
	case errors.Is(err, domain.ErrNoOp):
		out.NoOp = true
		out.Message = err.Error()
	case err != nil:
		return WrapExitError("rollback failed", err)
	default:
		out.NewVersion = newVersion
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	if out.NoOp {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to do, v%d is already latest\n", entityID, target)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: restored v%d as v%d\n", entityID, target, out.NewVersion)
	return nil
}
