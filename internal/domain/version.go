package domain

import (
	"fmt"
	"strings"
	"time"
)

// VersionSource records which operation produced a version.
type VersionSource string

const (
	SourceIngest   VersionSource = "ingest"
	SourceRollback VersionSource = "rollback"
)

// Version is one immutable snapshot of an entity. It is created once and
// never updated; corrections are new versions.
type Version struct {
	EntityID       string        `json:"entityId"`
	VersionNumber  int           `json:"versionNumber"`
	Fields         Fields        `json:"fields"`
	ContentHash    string        `json:"contentHash"`
	Timestamp      time.Time     `json:"timestamp"`
	Diff           ChangeSet     `json:"diff"`
	Source         VersionSource `json:"source"`
	RolledBackFrom int           `json:"rolledBackFrom,omitempty"`
}

// NewInitialVersion builds version 1 of an entity with an empty diff.
func NewInitialVersion(entityID string, fields Fields, now time.Time) Version {
	fields = fields.Clone()
	return Version{
		EntityID:      entityID,
		VersionNumber: 1,
		Fields:        fields,
		ContentHash:   Fingerprint(fields),
		Timestamp:     now.UTC(),
		Diff:          ChangeSet{},
		Source:        SourceIngest,
	}
}

// Successor builds the version that follows v with the given fields. The diff
// is computed against v's fields only; bookkeeping never enters it.
func (v Version) Successor(fields Fields, now time.Time) Version {
	fields = fields.Clone()
	return Version{
		EntityID:      v.EntityID,
		VersionNumber: v.VersionNumber + 1,
		Fields:        fields,
		ContentHash:   Fingerprint(fields),
		Timestamp:     now.UTC(),
		Diff:          DiffFields(v.Fields, fields),
		Source:        SourceIngest,
	}
}

// Label identifies the version in diffs and logs, e.g. "S1@v2".
func (v Version) Label() string {
	return fmt.Sprintf("%s@v%d", v.EntityID, v.VersionNumber)
}

// SortOrder controls version listing order.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// ParseSortOrder accepts asc/desc (case insensitive); empty means descending.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", ErrValidation, raw)
	}
}
