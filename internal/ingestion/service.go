package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/versioning"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Service parses uploaded tables into records and hands them to the
// versioning engine as one batch.
type Service struct {
	engine *versioning.Engine
	logger *slog.Logger
}

// NewService creates a new ingestion service.
func NewService(engine *versioning.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

// Request describes the ingestion input.
type Request struct {
	FileName string
	// IDField overrides the engine's identifier column for this upload.
	IDField         string
	HeaderRowIndex  *int
	ColumnOverrides map[string]ColumnType
	Data            io.Reader
}

// Ingest parses the upload and ingests every data row. Parse failures of the
// whole file are returned as errors wrapping domain.ErrValidation; per-row
// problems appear as invalid outcomes in the result.
func (s *Service) Ingest(ctx context.Context, req Request) (versioning.BatchResult, error) {
	if req.Data == nil {
		return versioning.BatchResult{}, fmt.Errorf("%w: no data provided", domain.ErrValidation)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return versioning.BatchResult{}, fmt.Errorf("failed to read upload: %w", err)
	}

	engine := s.engine.WithIDFieldOverride(req.IDField)
	records, err := ParseRecords(req.FileName, payload, engine.IDField(), req.HeaderRowIndex, req.ColumnOverrides)
	if err != nil {
		return versioning.BatchResult{}, err
	}

	s.logger.DebugContext(ctx, "parsed upload", "file", req.FileName, "rows", len(records), "id_field", engine.IDField())
	return engine.IngestSource(ctx, req.FileName, records)
}

// ParseRecords turns a CSV or XLSX payload into records. The identifier
// column is always read as text so leading zeros survive.
func ParseRecords(fileName string, payload []byte, idField string, headerRowIndex *int, overrides map[string]ColumnType) ([]domain.Record, error) {
	table, err := parseTable(fileName, payload, headerRowIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	// Columns without an override are typed cell by cell.
	types := make([]ColumnType, len(table.headers))
	hasID := false
	for idx, header := range table.headers {
		switch override, ok := overrides[header]; {
		case header == idField:
			types[idx] = ColumnString
			hasID = true
		case ok && override != "":
			types[idx] = override
		}
	}
	if !hasID {
		return nil, fmt.Errorf("%w: identifier column %q not found in header", domain.ErrValidation, idField)
	}

	records := make([]domain.Record, 0, len(table.rows))
	for i, row := range table.rows {
		record := domain.Record{
			Row:    table.rowNumbers[i],
			Fields: make(domain.Fields, len(table.headers)),
		}
		var cellErrs []error
		for idx, header := range table.headers {
			value, err := coerceValue(types[idx], row[idx])
			if err != nil {
				cellErrs = append(cellErrs, fmt.Errorf("column %s: %w", header, err))
				continue
			}
			record.Fields[header] = value
		}
		record.Err = errors.Join(cellErrs...)
		records = append(records, record)
	}

	return records, nil
}
