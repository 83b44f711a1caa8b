package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/ingestion"
	"github.com/rpattn/verstore/internal/versioning"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	IDField   string
	HeaderRow int
	Types     []string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a CSV or XLSX file",
		Long: `Ingest every data row of a CSV or XLSX file as one batch.

Rows whose content matches the entity's latest version are unchanged and
write nothing. Rows without an identifier are reported as invalid and do
not stop the batch.

Examples:
  verstore ingest studies.csv
  verstore ingest studies.xlsx --id-field Code --types Meta=json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "identifier column; overrides ingest.id_field")
	cmd.Flags().IntVar(&opts.HeaderRow, "header-row", -1, "0-based header row index (default: first non-blank row)")
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "column type overrides as Column=type (string, number, bool, date, json)")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, path string) error {
	overrides, err := parseTypeOverrides(opts.Types)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "invalid --types", Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "failed to open file", Err: err}
	}
	defer file.Close()

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	req := ingestion.Request{
		FileName:        filepath.Base(path),
		IDField:         opts.IDField,
		ColumnOverrides: overrides,
		Data:            file,
	}
	if opts.HeaderRow >= 0 {
		req.HeaderRowIndex = &opts.HeaderRow
	}

	result, err := a.Ingestion.Ingest(ctx, req)
	if err != nil {
		return WrapExitError("ingestion failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return writeBatchText(cmd.OutOrStdout(), result)
}

func parseTypeOverrides(raw []string) (map[string]ingestion.ColumnType, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]ingestion.ColumnType, len(raw))
	for _, item := range raw {
		column, name, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("expected Column=type, got %q", item)
		}
		columnType, err := ingestion.ParseColumnType(name)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(column)] = columnType
	}
	return out, nil
}

func writeBatchText(w io.Writer, result versioning.BatchResult) error {
	fmt.Fprintf(w, "Batch %s (%s)\n", result.BatchID, result.Source)
	fmt.Fprintf(w, "inserted=%d unchanged=%d invalid=%d conflicts=%d failed=%d\n\n",
		result.Inserted, result.Unchanged, result.Invalid, result.Conflicts, result.Failed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tENTITY\tSTATE\tVERSION\tMESSAGE")
	for _, outcome := range result.Outcomes {
		version := ""
		if outcome.VersionNumber > 0 {
			version = fmt.Sprintf("%d", outcome.VersionNumber)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", outcome.Row, outcome.EntityID, outcome.State, version, outcome.Message)
	}
	return tw.Flush()
}
