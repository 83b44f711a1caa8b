package latestloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// LatestLoader coalesces latest-version lookups into GetLatestMany calls.
// A loader caches what it has seen, so create one per request or batch.
type LatestLoader struct {
	Loader *dataloader.Loader
}

// NewLatestLoader builds a loader over store; opts override the 5ms batch window.
func NewLatestLoader(store repository.VersionStore, opts ...dataloader.Option) *LatestLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		// Fetch versions in batch
		latest, err := store.GetLatestMany(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Build results in the same order as keys; unknown ids carry nil
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if v, ok := latest[id]; ok {
				results[i] = &dataloader.Result{Data: v}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	options := append([]dataloader.Option{dataloader.WithWait(5 * time.Millisecond)}, opts...)
	loader := dataloader.NewBatchedLoader(batchFn, options...)

	return &LatestLoader{Loader: loader}
}

// Load returns the latest version of one entity; ok is false if it is unknown.
func (l *LatestLoader) Load(ctx context.Context, entityID string) (domain.Version, bool, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(entityID))()
	if err != nil {
		return domain.Version{}, false, err
	}
	version, ok := data.(domain.Version)
	return version, ok, nil
}

// LoadMany returns the latest version of each known entity among ids.
func (l *LatestLoader) LoadMany(ctx context.Context, entityIDs []string) (map[string]domain.Version, error) {
	out := make(map[string]domain.Version, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	data, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(entityIDs))()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to load latest version of %s: %w", entityIDs[i], err)
		}
	}
	for _, item := range data {
		if version, ok := item.(domain.Version); ok {
			out[version.EntityID] = version
		}
	}
	return out, nil
}
