package latestloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/graph-gophers/dataloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

type countingStore struct {
	repository.VersionStore
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *countingStore) GetLatestMany(ctx context.Context, ids []string) (map[string]domain.Version, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), ids...))
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.VersionStore.GetLatestMany(ctx, ids)
}

func seededStore(t *testing.T) *countingStore {
	t.Helper()
	inner := repository.NewMemoryVersionStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"S1", "S2"} {
		require.NoError(t, inner.AppendVersion(context.Background(), domain.NewInitialVersion(id, domain.Fields{"Name": domain.String(id)}, now)))
	}
	return &countingStore{VersionStore: inner}
}

func TestLoadManyUsesOneLookup(t *testing.T) {
	store := seededStore(t)
	loader := NewLatestLoader(store)

	got, err := loader.LoadMany(context.Background(), []string{"S1", "S2", "S3"})
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Equal(t, "S1", got["S1"].EntityID)
	_, ok := got["S3"]
	assert.False(t, ok)
	require.Len(t, store.calls, 1)
	assert.ElementsMatch(t, []string{"S1", "S2", "S3"}, store.calls[0])
}

func TestConcurrentLoadsAreBatched(t *testing.T) {
	store := seededStore(t)
	loader := NewLatestLoader(store, dataloader.WithWait(100*time.Millisecond))
	ctx := context.Background()

	var wg sync.WaitGroup
	found := make([]bool, 3)
	for i, id := range []string{"S1", "S2", "S3"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, ok, err := loader.Load(ctx, id)
			assert.NoError(t, err)
			found[i] = ok
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, []bool{true, true, false}, found)
	assert.Len(t, store.calls, 1)
}

func TestLoadManyPropagatesStoreErrors(t *testing.T) {
	store := seededStore(t)
	store.err = domain.ErrStoreUnavailable
	loader := NewLatestLoader(store)

	_, err := loader.LoadMany(context.Background(), []string{"S1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}
