package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

// Engine republishes historical versions as new latest versions.
type Engine struct {
	store  repository.VersionStore
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates a rollback engine. A nil clock means time.Now.
func NewEngine(store repository.VersionStore, now func() time.Time, logger *slog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, now: now, logger: logger}
}

// Rollback appends a copy of version target's fields as latest+1 and returns
// the new version number. It returns domain.ErrNotFound when target does not
// exist, domain.ErrNoOp when target is already latest, and domain.ErrConflict
// when another writer appended first; history is never modified.
func (e *Engine) Rollback(ctx context.Context, entityID string, target int) (int, error) {
	restored, err := e.store.GetVersion(ctx, entityID, target)
	if err != nil {
		return 0, err
	}

	latest, err := e.store.GetLatest(ctx, entityID)
	if err != nil {
		return 0, err
	}
	if latest.VersionNumber == target {
		return latest.VersionNumber, fmt.Errorf("version %d of %s is already latest: %w", target, entityID, domain.ErrNoOp)
	}

	now := e.now().UTC()
	if now.Before(latest.Timestamp) {
		now = latest.Timestamp
	}
	next := latest.Successor(restored.Fields, now)
	next.Source = domain.SourceRollback
	next.RolledBackFrom = target

	if err := e.store.AppendVersion(ctx, next); err != nil {
		return 0, err
	}

	e.logger.InfoContext(ctx, "rolled back entity",
		"entity_id", entityID,
		"target", target,
		"new_version", next.VersionNumber,
		"changed_fields", len(next.Diff),
	)
	return next.VersionNumber, nil
}
