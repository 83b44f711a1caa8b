package comparison

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

func seeded(t *testing.T) repository.VersionStore {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repository.NewMemoryVersionStore()

	v1 := domain.NewInitialVersion("S1", domain.Fields{"Name": domain.String("A"), "Dose": domain.Number(10)}, now)
	v2 := v1.Successor(domain.Fields{"Name": domain.String("A"), "Dose": domain.Number(20), "Site": domain.String("Oslo")}, now)
	v3 := v2.Successor(v1.Fields, now)
	for _, v := range []domain.Version{v1, v2, v3} {
		require.NoError(t, store.AppendVersion(ctx, v))
	}
	return store
}

func TestCompareRestoredVersionShowsNoChanges(t *testing.T) {
	engine := NewEngine(seeded(t))

	rows, err := engine.Compare(context.Background(), "S1", 1, 3)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "Dose", rows[0].Field)
	assert.False(t, rows[0].Changed)
	assert.Equal(t, "10", rows[0].DisplayA())
	assert.Equal(t, "10", rows[0].DisplayB())
	assert.Equal(t, "Name", rows[1].Field)
	assert.False(t, rows[1].Changed)
}

func TestCompareMarksMissingFields(t *testing.T) {
	engine := NewEngine(seeded(t))

	rows, err := engine.Compare(context.Background(), "S1", 1, 2)
	require.NoError(t, err)

	fields := []string{}
	for _, row := range rows {
		fields = append(fields, row.Field)
	}
	assert.Equal(t, []string{"Dose", "Name", "Site"}, fields)

	assert.True(t, rows[0].Changed)
	assert.False(t, rows[1].Changed)

	site := rows[2]
	assert.True(t, site.Changed)
	assert.False(t, site.PresentA)
	assert.Equal(t, domain.MissingText, site.DisplayA())
	assert.Equal(t, "Oslo", site.DisplayB())
}

func TestRowsUseCanonicalEquality(t *testing.T) {
	rows := Rows(
		domain.Fields{"Tags": domain.List{domain.String("a"), domain.String("b")}, "Dose": domain.Number(10)},
		domain.Fields{"Tags": domain.List{domain.String("b"), domain.String("a")}, "Dose": domain.Number(10.0)},
	)
	for _, row := range rows {
		assert.False(t, row.Changed, row.Field)
	}
}

func TestCompareMissingVersion(t *testing.T) {
	engine := NewEngine(seeded(t))

	_, err := engine.Compare(context.Background(), "S1", 1, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnified(t *testing.T) {
	engine := NewEngine(seeded(t))

	out, err := engine.Unified(context.Background(), "S1", 1, 2)
	require.NoError(t, err)
	assert.Contains(t, out, "--- S1@v1")
	assert.Contains(t, out, "+++ S1@v2")
	assert.Contains(t, out, "+  Site: \"Oslo\"")
}
