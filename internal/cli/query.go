package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/verstore/internal/domain"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Order string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <entity-id>",
		Short: "List the versions of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Order, "order", "desc", "version order (asc|desc)")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions, entityID string) error {
	order, err := domain.ParseSortOrder(opts.Order)
	if err != nil {
		return WrapExitError("invalid --order", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.Store.ListVersions(ctx, entityID, order)
	if err != nil {
		return WrapExitError("failed to list versions", err)
	}
	if len(versions) == 0 {
		return WrapExitError("failed to list versions", fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound))
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), versions)
	}
	return writeVersionsText(cmd.OutOrStdout(), versions)
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-id> [version]",
		Short: "Show one version of an entity (latest by default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, rootOpts, args)
		},
	}
}

func runShow(cmd *cobra.Command, opts *RootOptions, args []string) error {
	number := 0
	if len(args) == 2 {
		n, err := parseVersionArg(args[1])
		if err != nil {
			return err
		}
		number = n
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	var version domain.Version
	if number == 0 {
		version, err = a.Store.GetLatest(ctx, args[0])
	} else {
		version, err = a.Store.GetVersion(ctx, args[0], number)
	}
	if err != nil {
		return WrapExitError("failed to load version", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), version)
	}
	return writeVersionDetail(cmd.OutOrStdout(), version)
}

// NewLatestCommand creates the latest command.
func NewLatestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest [entity-id...]",
		Short: "List the latest version of every entity, or of the given ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(cmd, rootOpts, args)
		},
	}
}

func runLatest(cmd *cobra.Command, opts *RootOptions, ids []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	var versions []domain.Version
	if len(ids) == 0 {
		versions, err = a.Store.ListLatest(ctx)
		if err != nil {
			return WrapExitError("failed to list latest versions", err)
		}
	} else {
		latest, err := a.Store.GetLatestMany(ctx, ids)
		if err != nil {
			return WrapExitError("failed to load latest versions", err)
		}
		for _, id := range ids {
			if v, ok := latest[id]; ok {
				versions = append(versions, v)
			}
		}
	}

	if opts.Format == "json" {
		if versions == nil {
			versions = []domain.Version{}
		}
		return writeJSON(cmd.OutOrStdout(), versions)
	}
	return writeVersionsText(cmd.OutOrStdout(), versions)
}

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Batch  string
	Limit  int
	Offset int
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List rows that did not produce a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "only show this batch id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 200, "maximum entries")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "entries to skip")
	return cmd
}

func runLogs(cmd *cobra.Command, opts *LogsOptions) error {
	batchID := uuid.Nil
	if strings.TrimSpace(opts.Batch) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(opts.Batch))
		if err != nil {
			return &ExitError{Code: ExitCommandError, Message: "invalid --batch", Err: err}
		}
		batchID = parsed
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.Logs.List(ctx, batchID, opts.Limit, opts.Offset)
	if err != nil {
		return WrapExitError("failed to list ingestion logs", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), logs)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBATCH\tFILE\tROW\tENTITY\tSTATE\tERROR")
	for _, entry := range logs {
		row := ""
		if entry.RowNumber != nil {
			row = fmt.Sprintf("%d", *entry.RowNumber)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.UTC().Format(time.RFC3339), entry.BatchID, entry.FileName, row, entry.EntityID, entry.State, entry.ErrorMessage)
	}
	return tw.Flush()
}

func parseVersionArg(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid version %q", raw)}
	}
	return n, nil
}

func writeVersionsText(w io.Writer, versions []domain.Version) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tVERSION\tTIMESTAMP\tSOURCE\tCHANGES\tHASH")
	for _, v := range versions {
		source := string(v.Source)
		if v.RolledBackFrom > 0 {
			source = fmt.Sprintf("%s from v%d", v.Source, v.RolledBackFrom)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			v.EntityID, v.VersionNumber, v.Timestamp.UTC().Format(time.RFC3339), source, strings.Join(v.Diff.Paths(), ","), shortHash(v.ContentHash))
	}
	return tw.Flush()
}

func writeVersionDetail(w io.Writer, v domain.Version) error {
	fmt.Fprintf(w, "%s  %s  %s\n", v.Label(), v.Timestamp.UTC().Format(time.RFC3339), v.Source)
	fmt.Fprintf(w, "hash: %s\n\n", v.ContentHash)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, key := range v.Fields.Keys() {
		fmt.Fprintf(tw, "%s\t%s\n", key, domain.Display(v.Fields[key]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if v.Diff.IsEmpty() {
		return nil
	}
	diff, err := v.Diff.PlainJSON()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ndiff: %s\n", diff)
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
