package repository

import (
	"context"

	"github.com/rpattn/verstore/internal/domain"

	"github.com/google/uuid"
)

// VersionStore persists immutable entity versions. Implementations must
// enforce uniqueness of (EntityID, VersionNumber) in the store itself so that
// concurrent writers computing the same next number cannot both succeed.
type VersionStore interface {
	// GetLatest returns the version with the highest number, or domain.ErrNotFound.
	GetLatest(ctx context.Context, entityID string) (domain.Version, error)
	// GetLatestMany returns the latest version per id; unknown ids are absent from the map.
	GetLatestMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error)
	// GetVersion returns one version, or domain.ErrNotFound.
	GetVersion(ctx context.Context, entityID string, versionNumber int) (domain.Version, error)
	ListVersions(ctx context.Context, entityID string, order domain.SortOrder) ([]domain.Version, error)
	// ListEntityIDs returns the distinct known entity ids in sorted order.
	ListEntityIDs(ctx context.Context) ([]string, error)
	// ListLatest returns the latest version of every entity, sorted by entity id.
	ListLatest(ctx context.Context) ([]domain.Version, error)
	// AppendVersion writes a new version or returns domain.ErrConflict.
	AppendVersion(ctx context.Context, version domain.Version) error
	// BulkAppend writes many versions and reports each outcome individually.
	// Results are returned in input order.
	BulkAppend(ctx context.Context, versions []domain.Version) []AppendResult
}

// AppendStatus is the outcome of one BulkAppend item. The store is append
// only, so there is no "updated" outcome.
type AppendStatus string

const (
	AppendInserted AppendStatus = "inserted"
	AppendConflict AppendStatus = "conflict"
	AppendFailed   AppendStatus = "failed"
)

// AppendResult reports what happened to one version passed to BulkAppend.
type AppendResult struct {
	Version domain.Version
	Status  AppendStatus
	Err     error
}

// IngestionLogRepository stores per-row ingestion failures for later review.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	List(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error)
}
