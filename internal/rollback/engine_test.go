package rollback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// seed stores S1 v1 {Name:A, Dose:10} and v2 {Name:A, Dose:20}.
func seed(t *testing.T) repository.VersionStore {
	t.Helper()
	store := repository.NewMemoryVersionStore()
	v1 := domain.NewInitialVersion("S1", domain.Fields{"Name": domain.String("A"), "Dose": domain.Number(10)}, start)
	v2 := v1.Successor(domain.Fields{"Name": domain.String("A"), "Dose": domain.Number(20)}, start.Add(time.Minute))
	require.NoError(t, store.AppendVersion(context.Background(), v1))
	require.NoError(t, store.AppendVersion(context.Background(), v2))
	return store
}

func TestRollbackAppendsRestoredVersion(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	before, err := store.ListVersions(ctx, "S1", domain.Ascending)
	require.NoError(t, err)

	engine := NewEngine(store, func() time.Time { return start.Add(time.Hour) }, nil)
	newVersion, err := engine.Rollback(ctx, "S1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, newVersion)

	v3, err := store.GetVersion(ctx, "S1", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.Number(10), v3.Fields["Dose"])
	assert.Equal(t, before[0].ContentHash, v3.ContentHash)
	assert.Equal(t, domain.SourceRollback, v3.Source)
	assert.Equal(t, 1, v3.RolledBackFrom)
	assert.True(t, v3.Timestamp.Equal(start.Add(time.Hour)))

	change, ok := v3.Diff.Get("Dose")
	require.True(t, ok, "diff is against the previous latest")
	assert.Equal(t, domain.Number(20), change.Old)
	assert.Equal(t, domain.Number(10), change.New)

	after, err := store.ListVersions(ctx, "S1", domain.Ascending)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[1], after[1])
}

func TestRollbackToLatestIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	engine := NewEngine(store, nil, nil)

	current, err := engine.Rollback(ctx, "S1", 2)
	assert.ErrorIs(t, err, domain.ErrNoOp)
	assert.Equal(t, 2, current)

	versions, err := store.ListVersions(ctx, "S1", domain.Ascending)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestRollbackMissingTarget(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seed(t), nil, nil)

	_, err := engine.Rollback(ctx, "S1", 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = engine.Rollback(ctx, "S404", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// racingStore lets another writer append between the read and the write.
type racingStore struct {
	repository.VersionStore
	raced bool
}

func (s *racingStore) AppendVersion(ctx context.Context, version domain.Version) error {
	if !s.raced {
		s.raced = true
		latest, err := s.VersionStore.GetLatest(ctx, version.EntityID)
		if err != nil {
			return err
		}
		competitor := latest.Successor(domain.Fields{"Name": domain.String("B")}, latest.Timestamp)
		if err := s.VersionStore.AppendVersion(ctx, competitor); err != nil {
			return err
		}
	}
	return s.VersionStore.AppendVersion(ctx, version)
}

func TestRollbackSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{VersionStore: seed(t)}
	engine := NewEngine(store, nil, nil)

	_, err := engine.Rollback(ctx, "S1", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// retrying recomputes against the new latest
	newVersion, err := engine.Rollback(ctx, "S1", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, newVersion)
}
