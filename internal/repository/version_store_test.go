package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/verstore/internal/db"
	"github.com/rpattn/verstore/internal/domain"
)

var baseTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) VersionStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "versions.db")
	require.NoError(t, db.RunSQLiteMigrations(path, nil))
	conn, err := db.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLiteVersionStore(conn)
}

func TestMemoryVersionStore(t *testing.T) {
	runVersionStoreContract(t, func(t *testing.T) VersionStore {
		return NewMemoryVersionStore()
	})
}

func TestSQLiteVersionStore(t *testing.T) {
	runVersionStoreContract(t, newSQLiteStore)
}

// history builds n consecutive versions of one entity.
func history(entityID string, n int) []domain.Version {
	versions := make([]domain.Version, 0, n)
	current := domain.NewInitialVersion(entityID, domain.Fields{"Dose": domain.Number(1)}, baseTime)
	versions = append(versions, current)
	for i := 2; i <= n; i++ {
		current = current.Successor(domain.Fields{"Dose": domain.Number(float64(i))}, baseTime.Add(time.Duration(i)*time.Minute))
		versions = append(versions, current)
	}
	return versions
}

func appendAll(t *testing.T, store VersionStore, versions ...domain.Version) {
	t.Helper()
	for _, version := range versions {
		require.NoError(t, store.AppendVersion(context.Background(), version))
	}
}

func runVersionStoreContract(t *testing.T, newStore func(t *testing.T) VersionStore) {
	ctx := context.Background()

	t.Run("missing entity is not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetLatest(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = store.GetVersion(ctx, "nope", 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		versions, err := store.ListVersions(ctx, "nope", domain.Descending)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("round trip keeps payload and provenance", func(t *testing.T) {
		store := newStore(t)
		start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		first := domain.NewInitialVersion("S1", domain.Fields{
			"Name":      domain.String("Trial"),
			"Dose":      domain.Number(12.5),
			"Active":    domain.Bool(true),
			"StartDate": domain.NewDate(start),
			"Tags":      domain.List{domain.String("a"), domain.Number(2)},
			"Meta":      domain.Object{"site": domain.String("Oslo")},
		}, baseTime)
		second := first.Successor(domain.Fields{"Name": domain.String("Trial")}, baseTime.Add(time.Hour))
		second.Source = domain.SourceRollback
		second.RolledBackFrom = 1
		appendAll(t, store, first, second)

		got, err := store.GetVersion(ctx, "S1", 1)
		require.NoError(t, err)
		assert.Equal(t, first.ContentHash, got.ContentHash)
		assert.Equal(t, first.ContentHash, domain.Fingerprint(got.Fields))
		assert.True(t, got.Timestamp.Equal(first.Timestamp))
		assert.True(t, got.Diff.IsEmpty())
		assert.Equal(t, domain.SourceIngest, got.Source)
		assert.Zero(t, got.RolledBackFrom)
		assert.IsType(t, domain.Date{}, got.Fields["StartDate"])

		latest, err := store.GetLatest(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.VersionNumber)
		assert.Equal(t, domain.SourceRollback, latest.Source)
		assert.Equal(t, 1, latest.RolledBackFrom)
		assert.Equal(t, second.Diff.Paths(), latest.Diff.Paths())
	})

	t.Run("duplicate version number conflicts", func(t *testing.T) {
		store := newStore(t)
		versions := history("S1", 2)
		appendAll(t, store, versions...)

		clash := versions[0].Successor(domain.Fields{"Dose": domain.Number(99)}, baseTime)
		err := store.AppendVersion(ctx, clash)
		assert.ErrorIs(t, err, domain.ErrConflict)

		latest, err := store.GetLatest(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, versions[1].ContentHash, latest.ContentHash)
	})

	t.Run("lists honour order", func(t *testing.T) {
		store := newStore(t)
		appendAll(t, store, history("S1", 3)...)

		desc, err := store.ListVersions(ctx, "S1", domain.Descending)
		require.NoError(t, err)
		require.Len(t, desc, 3)
		assert.Equal(t, []int{3, 2, 1}, numbers(desc))

		asc, err := store.ListVersions(ctx, "S1", domain.Ascending)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, numbers(asc))
	})

	t.Run("entity listings are sorted", func(t *testing.T) {
		store := newStore(t)
		appendAll(t, store, history("S2", 1)...)
		appendAll(t, store, history("S1", 3)...)
		appendAll(t, store, history("A9", 2)...)

		ids, err := store.ListEntityIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"A9", "S1", "S2"}, ids)

		latest, err := store.ListLatest(ctx)
		require.NoError(t, err)
		require.Len(t, latest, 3)
		assert.Equal(t, "A9", latest[0].EntityID)
		assert.Equal(t, []int{2, 3, 1}, numbers(latest))

		many, err := store.GetLatestMany(ctx, []string{"S1", "S2", "missing", "S1"})
		require.NoError(t, err)
		require.Len(t, many, 2)
		assert.Equal(t, 3, many["S1"].VersionNumber)
		assert.Equal(t, 1, many["S2"].VersionNumber)
	})

	t.Run("bulk append reports each item", func(t *testing.T) {
		store := newStore(t)
		existing := history("S1", 1)
		appendAll(t, store, existing...)

		fresh := history("S2", 2)
		duplicate := domain.NewInitialVersion("S1", domain.Fields{"Dose": domain.Number(5)}, baseTime)
		batch := []domain.Version{fresh[0], duplicate, fresh[1]}

		results := store.BulkAppend(ctx, batch)
		require.Len(t, results, 3)
		assert.Equal(t, AppendInserted, results[0].Status)
		assert.Equal(t, AppendConflict, results[1].Status)
		assert.ErrorIs(t, results[1].Err, domain.ErrConflict)
		assert.Equal(t, AppendInserted, results[2].Status)
		assert.Equal(t, "S1", results[1].Version.EntityID)

		latest, err := store.GetLatest(ctx, "S2")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.VersionNumber)
	})

	t.Run("concurrent writers of the same number produce one winner", func(t *testing.T) {
		store := newStore(t)
		appendAll(t, store, history("S1", 1)...)
		base, err := store.GetLatest(ctx, "S1")
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := base.Successor(domain.Fields{"Dose": domain.Number(float64(100 + i))}, baseTime)
				err := store.AppendVersion(ctx, next)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected append error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
		versions, err := store.ListVersions(ctx, "S1", domain.Ascending)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, numbers(versions))
	})
}

func numbers(versions []domain.Version) []int {
	out := make([]int, len(versions))
	for i, version := range versions {
		out[i] = version.VersionNumber
	}
	return out
}
