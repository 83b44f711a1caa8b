package comparison

import (
	"context"
	"sort"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

// Engine compares stored versions field by field. It never writes.
type Engine struct {
	store repository.VersionStore
}

func NewEngine(store repository.VersionStore) *Engine {
	return &Engine{store: store}
}

// Compare loads versions a and b of entityID and returns one row per field
// present in either, sorted by field name.
func (e *Engine) Compare(ctx context.Context, entityID string, a, b int) ([]domain.ComparisonRow, error) {
	left, right, err := e.Load(ctx, entityID, a, b)
	if err != nil {
		return nil, err
	}
	return Rows(left.Fields, right.Fields), nil
}

// Load fetches both versions, for callers that also render them.
func (e *Engine) Load(ctx context.Context, entityID string, a, b int) (domain.Version, domain.Version, error) {
	left, err := e.store.GetVersion(ctx, entityID, a)
	if err != nil {
		return domain.Version{}, domain.Version{}, err
	}
	right, err := e.store.GetVersion(ctx, entityID, b)
	if err != nil {
		return domain.Version{}, domain.Version{}, err
	}
	return left, right, nil
}

// Unified renders versions a and b as a unified diff of their fields.
func (e *Engine) Unified(ctx context.Context, entityID string, a, b int) (string, error) {
	left, right, err := e.Load(ctx, entityID, a, b)
	if err != nil {
		return "", err
	}
	return domain.RenderUnified(left.Label(), left.Fields, right.Label(), right.Fields), nil
}

// Rows builds the comparison table of two field sets. Changed uses the same
// canonical equality as content hashing.
func Rows(a, b domain.Fields) []domain.ComparisonRow {
	keys := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		keys[key] = struct{}{}
	}
	for key := range b {
		keys[key] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for key := range keys {
		names = append(names, key)
	}
	sort.Strings(names)

	rows := make([]domain.ComparisonRow, 0, len(names))
	for _, name := range names {
		valueA, inA := a[name]
		valueB, inB := b[name]
		row := domain.ComparisonRow{
			Field:    name,
			ValueA:   valueA,
			ValueB:   valueB,
			PresentA: inA,
			PresentB: inB,
		}
		switch {
		case inA && inB:
			row.Changed = !domain.Equal(valueA, valueB)
		default:
			row.Changed = true
		}
		rows = append(rows, row)
	}
	return rows
}
