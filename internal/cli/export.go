package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	FileFormat string
	Out        string
	Compare    string
	Order      string
	Latest     bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [entity-id]",
		Short: "Export version history, a comparison or the latest versions",
		Long: `Export data as csv, json, yaml or xlsx.

With an entity id the full version history is exported. Add --compare a,b
to export a field comparison instead. With --latest the latest version of
every entity is exported.

--out names a file, or a directory that receives a generated file name.
Without --out the export is written to stdout (xlsx requires --out).

Examples:
  verstore export S1 --file-format json
  verstore export S1 --compare 1,3 --out reports/
  verstore export --latest --file-format xlsx --out latest.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.FileFormat, "file-format", "csv", "export format (csv|json|yaml|xlsx)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file or directory")
	cmd.Flags().StringVar(&opts.Compare, "compare", "", "export a comparison of two versions, as a,b")
	cmd.Flags().StringVar(&opts.Order, "order", "asc", "version order for history exports (asc|desc)")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "export the latest version of every entity")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, args []string) error {
	format, err := export.ParseFormat(opts.FileFormat)
	if err != nil {
		return WrapExitError("invalid --file-format", err)
	}
	order, err := domain.ParseSortOrder(opts.Order)
	if err != nil {
		return WrapExitError("invalid --order", err)
	}

	var entityID string
	switch {
	case opts.Latest && len(args) > 0:
		return &ExitError{Code: ExitCommandError, Message: "--latest does not take an entity id"}
	case !opts.Latest && len(args) == 0:
		return &ExitError{Code: ExitCommandError, Message: "an entity id is required unless --latest is set"}
	case len(args) == 1:
		entityID = args[0]
	}

	var first, second int
	if opts.Compare != "" {
		if opts.Latest {
			return &ExitError{Code: ExitCommandError, Message: "--compare cannot be combined with --latest"}
		}
		rawA, rawB, ok := strings.Cut(opts.Compare, ",")
		if !ok {
			return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid --compare %q, expected a,b", opts.Compare)}
		}
		if first, err = parseVersionArg(strings.TrimSpace(rawA)); err != nil {
			return err
		}
		if second, err = parseVersionArg(strings.TrimSpace(rawB)); err != nil {
			return err
		}
	}

	if opts.Out == "" && format == export.FormatXLSX {
		return &ExitError{Code: ExitCommandError, Message: "xlsx exports require --out"}
	}

	var name string
	switch {
	case opts.Latest:
		name = export.FileName("latest", "", format)
	case opts.Compare != "":
		name = export.FileName(entityID, fmt.Sprintf("v%d-vs-v%d", first, second), format)
	default:
		name = export.FileName(entityID, "versions", format)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	w, path, closeOut, err := exportWriter(cmd.OutOrStdout(), opts.Out, name)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "failed to create output", Err: err}
	}

	switch {
	case opts.Latest:
		err = a.Export.WriteLatest(ctx, w, format)
	case opts.Compare != "":
		err = a.Export.WriteComparison(ctx, w, entityID, first, second, format)
	default:
		err = a.Export.WriteVersions(ctx, w, entityID, format, order)
	}
	if closeErr := closeOut(err); err == nil {
		err = closeErr
	}
	if err != nil {
		return WrapExitError("export failed", err)
	}

	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	}
	return nil
}

// exportWriter resolves the destination. An existing directory (or a path
// ending in a separator) receives the generated name. The returned close
// function removes a partially written file when the export failed.
func exportWriter(stdout io.Writer, out, name string) (io.Writer, string, func(error) error, error) {
	if out == "" {
		return stdout, "", func(error) error { return nil }, nil
	}

	path := out
	if strings.HasSuffix(out, string(os.PathSeparator)) {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return nil, "", nil, err
		}
		path = filepath.Join(out, name)
	} else if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, name)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, "", nil, err
	}
	closeOut := func(writeErr error) error {
		err := file.Close()
		if writeErr != nil {
			_ = os.Remove(path)
		}
		return err
	}
	return file, path, closeOut, nil
}
