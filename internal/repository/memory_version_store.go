package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/verstore/internal/domain"
)

type memoryVersionStore struct {
	mu       sync.RWMutex
	versions map[string][]domain.Version
}

// NewMemoryVersionStore returns a process-local store. Versions of each
// entity are kept sorted by number.
func NewMemoryVersionStore() VersionStore {
	return &memoryVersionStore{versions: make(map[string][]domain.Version)}
}

func (s *memoryVersionStore) GetLatest(ctx context.Context, entityID string) (domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return domain.Version{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[entityID]
	if len(history) == 0 {
		return domain.Version{}, fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound)
	}
	return history[len(history)-1], nil
}

func (s *memoryVersionStore) GetLatestMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Version, len(entityIDs))
	for _, id := range entityIDs {
		history := s.versions[id]
		if len(history) == 0 {
			continue
		}
		out[id] = history[len(history)-1]
	}
	return out, nil
}

func (s *memoryVersionStore) GetVersion(ctx context.Context, entityID string, versionNumber int) (domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return domain.Version{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[entityID]
	idx := sort.Search(len(history), func(i int) bool { return history[i].VersionNumber >= versionNumber })
	if idx == len(history) || history[idx].VersionNumber != versionNumber {
		return domain.Version{}, fmt.Errorf("version %d of entity %s: %w", versionNumber, entityID, domain.ErrNotFound)
	}
	return history[idx], nil
}

func (s *memoryVersionStore) ListVersions(ctx context.Context, entityID string, order domain.SortOrder) ([]domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	history := append([]domain.Version(nil), s.versions[entityID]...)
	s.mu.RUnlock()

	sortVersions(history, order)
	if history == nil {
		history = []domain.Version{}
	}
	return history, nil
}

func (s *memoryVersionStore) ListEntityIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryVersionStore) ListLatest(ctx context.Context) ([]domain.Version, error) {
	ids, err := s.ListEntityIDs(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Version, 0, len(ids))
	for _, id := range ids {
		history := s.versions[id]
		out = append(out, history[len(history)-1])
	}
	return out, nil
}

func (s *memoryVersionStore) AppendVersion(ctx context.Context, version domain.Version) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(version)
}

func (s *memoryVersionStore) appendLocked(version domain.Version) error {
	history := s.versions[version.EntityID]
	idx := sort.Search(len(history), func(i int) bool { return history[i].VersionNumber >= version.VersionNumber })
	if idx < len(history) && history[idx].VersionNumber == version.VersionNumber {
		return fmt.Errorf("version %s: %w", version.Label(), domain.ErrConflict)
	}

	stored := version
	stored.Fields = version.Fields.Clone()
	history = append(history, domain.Version{})
	copy(history[idx+1:], history[idx:])
	history[idx] = stored
	s.versions[version.EntityID] = history
	return nil
}

func (s *memoryVersionStore) BulkAppend(ctx context.Context, versions []domain.Version) []AppendResult {
	results := make([]AppendResult, len(versions))
	if err := ctx.Err(); err != nil {
		for i, version := range versions {
			results[i] = AppendResult{Version: version, Status: AppendFailed, Err: fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)}
		}
		return results
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, version := range versions {
		results[i] = AppendResult{Version: version, Status: AppendInserted}
		if err := s.appendLocked(version); err != nil {
			results[i].Status = AppendConflict
			results[i].Err = err
		}
	}
	return results
}
