package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	Unified bool
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare <entity-id> <a> <b>",
		Short: "Compare two versions of an entity field by field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.Unified, "unified", false, "print a unified diff of the canonical field lines")
	return cmd
}

func runCompare(cmd *cobra.Command, opts *CompareOptions, args []string) error {
	first, err := parseVersionArg(args[1])
	if err != nil {
		return err
	}
	second, err := parseVersionArg(args[2])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Unified {
		text, err := a.Comparison.Unified(ctx, args[0], first, second)
		if err != nil {
			return WrapExitError("comparison failed", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	}

	rows, err := a.Comparison.Compare(ctx, args[0], first, second)
	if err != nil {
		return WrapExitError("comparison failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FIELD\tV%d\tV%d\t\n", first, second)
	for _, row := range rows {
		marker := ""
		if row.Changed {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Field, row.DisplayA(), row.DisplayB(), marker)
	}
	return tw.Flush()
}
