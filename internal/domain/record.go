package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Record is one incoming row: column name to value, including the identifier
// column. Row is the 1-based source row number used in outcome reporting.
// Err is set by a parser that could not read some cell; such records are
// reported invalid.
type Record struct {
	Row    int
	Fields Fields
	Err    error
}

// bookkeepingColumns are never part of the domain payload. The lowercase
// names are the ones older exports of this store carried.
var bookkeepingColumns = map[string]struct{}{
	"VersionNumber": {},
	"Timestamp":     {},
	"ContentHash":   {},
	"Diff":          {},
	"Source":        {},
	"version":       {},
	"timestamp":     {},
	"hash":          {},
	"diff":          {},
	"diff_log":      {},
	"_id":           {},
}

// IsBookkeeping reports whether a column name is reserved for version metadata.
func IsBookkeeping(column string) bool {
	_, ok := bookkeepingColumns[column]
	return ok
}

// EntityIDFromValue coerces an identifier cell to a trimmed string.
// Whole numbers lose their fractional part ("101" rather than "101.0").
func EntityIDFromValue(v Value) (string, error) {
	switch typed := v.(type) {
	case nil, Null:
		return "", fmt.Errorf("identifier is missing")
	case String:
		id := strings.TrimSpace(string(typed))
		if id == "" {
			return "", fmt.Errorf("identifier is empty")
		}
		return id, nil
	case Number:
		f := float64(typed)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("identifier %v is not a valid number", f)
		}
		return formatNumber(f), nil
	case Bool:
		return "", fmt.Errorf("identifier cannot be a boolean")
	default:
		return "", fmt.Errorf("identifier cannot be a %s", v.Kind())
	}
}

// timeLayouts are tried in order when a text cell must become a date.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000000000",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"2-Jan-2006",
	"Jan 2, 2006",
}

// ParseTimestamp parses text using the supported layouts; results are UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", raw)
}
