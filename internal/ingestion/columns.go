package ingestion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/verstore/internal/domain"
)

// ColumnType is the value kind a column is read as.
type ColumnType string

const (
	ColumnString ColumnType = "string"
	ColumnNumber ColumnType = "number"
	ColumnBool   ColumnType = "bool"
	ColumnDate   ColumnType = "date"
	ColumnJSON   ColumnType = "json"
)

// ParseColumnType accepts the names used in upload overrides.
func ParseColumnType(raw string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "string", "text":
		return ColumnString, nil
	case "number", "float", "integer", "int":
		return ColumnNumber, nil
	case "bool", "boolean":
		return ColumnBool, nil
	case "date", "timestamp":
		return ColumnDate, nil
	case "json":
		return ColumnJSON, nil
	default:
		return "", fmt.Errorf("unknown column type %q", raw)
	}
}

// inferValue types a cell of a column without an override from its own text
// only, so a value reads the same whatever the rest of the upload contains.
// Words true/false/yes/no are booleans, finite numbers are numbers, parseable
// timestamps are dates and everything else is text.
func inferValue(trimmed string) domain.Value {
	switch {
	case looksLikeBool(trimmed):
		b, _ := parseBool(trimmed)
		return domain.Bool(b)
	case looksLikeNumber(trimmed):
		f, _ := parseNumber(trimmed)
		return domain.Number(f)
	case looksLikeTimestamp(trimmed):
		ts, _ := domain.ParseTimestamp(trimmed)
		return domain.NewDate(ts)
	default:
		return domain.String(trimmed)
	}
}

// looksLikeBool only accepts words; 1 and 0 are read as numbers.
func looksLikeBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeNumber(value string) bool {
	_, err := parseNumber(value)
	return err == nil
}

// parseNumber accepts finite decimal numbers only. NaN and infinities have no
// JSON form, so they are rejected here and read as text when inferred.
func parseNumber(value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", value)
	}
	return f, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "yes", "y":
		return true, nil
	case "0", "no", "n":
		return false, nil
	}
	return strconv.ParseBool(strings.ToLower(value))
}

func looksLikeTimestamp(value string) bool {
	_, err := domain.ParseTimestamp(value)
	return err == nil
}

// coerceValue converts one cell. Blank cells become Null, which the
// versioning engine drops. An empty column type infers the cell's type.
func coerceValue(columnType ColumnType, raw string) (domain.Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Null{}, nil
	}

	switch columnType {
	case "":
		return inferValue(trimmed), nil
	case ColumnString:
		return domain.String(trimmed), nil
	case ColumnNumber:
		f, err := parseNumber(trimmed)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to number", raw)
		}
		return domain.Number(f), nil
	case ColumnBool:
		boolVal, err := parseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return domain.Bool(boolVal), nil
	case ColumnDate:
		ts, err := domain.ParseTimestamp(trimmed)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return domain.NewDate(ts), nil
	case ColumnJSON:
		decoder := json.NewDecoder(strings.NewReader(trimmed))
		decoder.UseNumber()
		var out any
		if err := decoder.Decode(&out); err != nil {
			return nil, fmt.Errorf("invalid json payload: %w", err)
		}
		return domain.FromAny(out)
	default:
		// Fallback for unknown types; best effort interpretation.
		return domain.String(trimmed), nil
	}
}
