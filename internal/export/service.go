package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/verstore/internal/comparison"
	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name or file extension; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", domain.ErrValidation, raw)
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

var versionHeaders = []string{"EntityID", "VersionNumber", "Timestamp", "ContentHash", "Source"}

const diffHeader = "Diff"

// Service renders version histories, latest listings and comparisons as
// downloadable tables.
type Service struct {
	store      repository.VersionStore
	comparer   *comparison.Engine
	logger     *slog.Logger
	timeLayout string
}

// Option configures the export service.
type Option func(*Service)

// WithLogger sets the logger used for export diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeLayout overrides the layout of the Timestamp column.
func WithTimeLayout(layout string) Option {
	return func(s *Service) {
		if strings.TrimSpace(layout) != "" {
			s.timeLayout = layout
		}
	}
}

// NewService constructs an export service.
func NewService(store repository.VersionStore, comparer *comparison.Engine, opts ...Option) *Service {
	svc := &Service{
		store:      store,
		comparer:   comparer,
		logger:     slog.Default(),
		timeLayout: time.RFC3339Nano,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// table is an ordered set of columns and rows. Cells hold domain values,
// change sets or plain Go values.
type table struct {
	sheet   string
	headers []string
	rows    [][]any
}

// WriteVersions writes the history of entityID, one row per version.
func (s *Service) WriteVersions(ctx context.Context, w io.Writer, entityID string, format Format, order domain.SortOrder) error {
	versions, err := s.store.ListVersions(ctx, entityID, order)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound)
	}
	s.logger.DebugContext(ctx, "exporting versions", "entity_id", entityID, "versions", len(versions), "format", format)
	return s.write(w, format, s.versionTable("Versions", versions, true))
}

// WriteLatest writes the latest version of every entity.
func (s *Service) WriteLatest(ctx context.Context, w io.Writer, format Format) error {
	versions, err := s.store.ListLatest(ctx)
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "exporting latest versions", "entities", len(versions), "format", format)
	return s.write(w, format, s.versionTable("Latest", versions, false))
}

// WriteComparison writes the field by field comparison of versions a and b.
func (s *Service) WriteComparison(ctx context.Context, w io.Writer, entityID string, a, b int, format Format) error {
	rows, err := s.comparer.Compare(ctx, entityID, a, b)
	if err != nil {
		return err
	}
	out := table{
		sheet:   "Comparison",
		headers: []string{"Field", "ValueA", "ValueB", "Changed"},
	}
	for _, row := range rows {
		out.rows = append(out.rows, []any{row.Field, comparisonCell(row.ValueA, row.PresentA), comparisonCell(row.ValueB, row.PresentB), row.Changed})
	}
	return s.write(w, format, out)
}

func comparisonCell(value domain.Value, present bool) any {
	if !present {
		return domain.MissingText
	}
	return value
}

func (s *Service) versionTable(sheet string, versions []domain.Version, withDiff bool) table {
	keys := make(map[string]struct{})
	for _, version := range versions {
		for key := range version.Fields {
			keys[key] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for key := range keys {
		names = append(names, key)
	}
	sort.Strings(names)

	out := table{sheet: sheet}
	out.headers = append(out.headers, versionHeaders...)
	for _, name := range names {
		out.headers = append(out.headers, fieldHeader(name))
	}
	if withDiff {
		out.headers = append(out.headers, diffHeader)
	}

	for _, version := range versions {
		row := make([]any, 0, len(out.headers))
		row = append(row,
			version.EntityID,
			version.VersionNumber,
			version.Timestamp.UTC().Format(s.timeLayout),
			version.ContentHash,
			string(version.Source),
		)
		for _, name := range names {
			value, ok := version.Fields[name]
			if !ok {
				row = append(row, nil)
				continue
			}
			row = append(row, value)
		}
		if withDiff {
			row = append(row, version.Diff)
		}
		out.rows = append(out.rows, row)
	}
	return out
}

// fieldHeader keeps domain columns from shadowing bookkeeping columns.
func fieldHeader(name string) string {
	for _, reserved := range versionHeaders {
		if name == reserved {
			return name + "_field"
		}
	}
	if name == diffHeader {
		return name + "_field"
	}
	return name
}

func (s *Service) write(w io.Writer, format Format, t table) error {
	switch format {
	case FormatCSV, "":
		return writeCSV(w, t)
	case FormatJSON:
		return writeJSONRecords(w, t)
	case FormatYAML:
		return writeYAML(w, t)
	case FormatXLSX:
		return writeXLSX(w, t)
	default:
		return fmt.Errorf("%w: unknown export format %q", domain.ErrValidation, format)
	}
}

func writeCSV(w io.Writer, t table) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(t.headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.headers))
	for _, row := range t.rows {
		for i, cell := range row {
			record[i] = formatValue(cell)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

// writeJSONRecords writes an array with one object per row, keys in column
// order.
func writeJSONRecords(w io.Writer, t table) error {
	var buf bytes.Buffer
	if len(t.rows) == 0 {
		buf.WriteString("[]\n")
		_, err := w.Write(buf.Bytes())
		return err
	}
	buf.WriteString("[\n")
	for r, row := range t.rows {
		buf.WriteString("  {")
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := encodeJSON(t.headers[i])
			if err != nil {
				return err
			}
			value, err := encodeJSON(nativeValue(cell))
			if err != nil {
				return fmt.Errorf("encode %s: %w", t.headers[i], err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
		if r < len(t.rows)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeYAML builds the document as nodes so mapping keys keep column order.
func writeYAML(w io.Writer, t table) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range t.rows {
		item := &yaml.Node{Kind: yaml.MappingNode}
		for i, cell := range row {
			value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
			if native := nativeValue(cell); native != nil {
				if err := value.Encode(native); err != nil {
					return fmt.Errorf("encode %s: %w", t.headers[i], err)
				}
			}
			item.Content = append(item.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.headers[i]},
				value,
			)
		}
		doc.Content = append(doc.Content, item)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func writeXLSX(w io.Writer, t table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), t.sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(t.headers))
	for i, name := range t.headers {
		header[i] = name
	}
	if err := f.SetSheetRow(t.sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for r, row := range t.rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = spreadsheetValue(cell)
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.sheet, axis, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// spreadsheetValue keeps numbers and booleans typed; everything else is text.
func spreadsheetValue(cell any) any {
	switch v := cell.(type) {
	case nil:
		return nil
	case domain.Number:
		return float64(v)
	case domain.Bool:
		return bool(v)
	case int, bool, float64:
		return v
	default:
		return formatValue(cell)
	}
}

func nativeValue(cell any) any {
	switch v := cell.(type) {
	case nil:
		return nil
	case domain.ChangeSet:
		return v.Plain()
	case domain.Value:
		return v.Native()
	default:
		return v
	}
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case domain.ChangeSet:
		encoded, err := v.PlainJSON()
		if err != nil {
			return fmt.Sprintf("%v", v.Plain())
		}
		return encoded
	case domain.Value:
		return domain.Display(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FileName suggests a download name such as "s1-versions.csv".
func FileName(entityID, kind string, format Format) string {
	base := sanitizeFileComponent(entityID)
	if base == "" {
		base = "export"
	}
	if kind != "" {
		base += "-" + sanitizeFileComponent(kind)
	}
	return base + "." + string(format)
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}
