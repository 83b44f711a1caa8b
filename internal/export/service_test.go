package export

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/verstore/internal/comparison"
	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
)

var day = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// seededStore holds S1 with an ingest, a change and a rollback to v1, plus S2.
// Hashes are fixed so the golden files stay readable.
func seededStore(t *testing.T) repository.VersionStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()

	v1 := domain.NewInitialVersion("S1", domain.Fields{"Name": domain.String("A"), "Dose": domain.Number(10)}, day)
	v1.ContentHash = "h1"

	v2 := v1.Successor(domain.Fields{
		"Name":      domain.String("A"),
		"Dose":      domain.Number(20),
		"StartDate": domain.NewDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
	}, day.Add(24*time.Hour))
	v2.ContentHash = "h2"

	v3 := v2.Successor(v1.Fields, day.Add(48*time.Hour))
	v3.ContentHash = "h1"
	v3.Source = domain.SourceRollback
	v3.RolledBackFrom = 1

	s2 := domain.NewInitialVersion("S2", domain.Fields{"Name": domain.String("B"), "Active": domain.Bool(true)}, day)
	s2.ContentHash = "h3"

	for _, v := range []domain.Version{v1, v2, v3, s2} {
		require.NoError(t, store.AppendVersion(ctx, v))
	}
	return store
}

func newTestService(t *testing.T) *Service {
	store := seededStore(t)
	return NewService(store, comparison.NewEngine(store))
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteVersionsGolden(t *testing.T) {
	svc := newTestService(t)
	g := newGoldie(t)

	for _, format := range []Format{FormatCSV, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, svc.WriteVersions(context.Background(), &buf, "S1", format, domain.Ascending))
			g.Assert(t, "versions_"+string(format), buf.Bytes())
		})
	}
}

func TestWriteComparisonGolden(t *testing.T) {
	svc := newTestService(t)
	g := newGoldie(t)

	for _, format := range []Format{FormatCSV, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, svc.WriteComparison(context.Background(), &buf, "S1", 1, 2, format))
			g.Assert(t, "comparison_"+string(format), buf.Bytes())
		})
	}
}

func TestWriteLatestGolden(t *testing.T) {
	svc := newTestService(t)
	var buf bytes.Buffer
	require.NoError(t, svc.WriteLatest(context.Background(), &buf, FormatCSV))
	newGoldie(t).Assert(t, "latest_csv", buf.Bytes())
}

func TestWriteVersionsYAML(t *testing.T) {
	svc := newTestService(t)
	var buf bytes.Buffer
	require.NoError(t, svc.WriteVersions(context.Background(), &buf, "S1", FormatYAML, domain.Descending))

	var docs []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 3)
	assert.Equal(t, 3, docs[0]["VersionNumber"])
	assert.Equal(t, "rollback", docs[0]["Source"])
	assert.Nil(t, docs[0]["StartDate"])
	assert.Equal(t, 1, docs[2]["VersionNumber"])

	diff, ok := docs[0]["Diff"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, diff, "Dose")
	assert.Contains(t, diff, "StartDate")
}

func TestWriteVersionsXLSX(t *testing.T) {
	svc := newTestService(t)
	var buf bytes.Buffer
	require.NoError(t, svc.WriteVersions(context.Background(), &buf, "S1", FormatXLSX, domain.Ascending))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Versions")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"EntityID", "VersionNumber", "Timestamp", "ContentHash", "Source", "Dose", "Name", "StartDate", "Diff"}, rows[0])
	assert.Equal(t, "S1", rows[2][0])
	assert.Equal(t, "20", rows[2][5])
	assert.Equal(t, "2024-01-15", rows[2][7])
}

func TestWriteVersionsUnknownEntity(t *testing.T) {
	svc := newTestService(t)
	err := svc.WriteVersions(context.Background(), &bytes.Buffer{}, "missing", FormatCSV, domain.Ascending)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTimeLayout(t *testing.T) {
	store := seededStore(t)
	svc := NewService(store, comparison.NewEngine(store), WithTimeLayout(time.DateOnly))

	var buf bytes.Buffer
	require.NoError(t, svc.WriteLatest(context.Background(), &buf, FormatCSV))
	assert.Contains(t, buf.String(), "S2,1,2024-01-15,h3")
}

func TestFieldHeaderAvoidsBookkeepingColumns(t *testing.T) {
	assert.Equal(t, "Source_field", fieldHeader("Source"))
	assert.Equal(t, "Diff_field", fieldHeader("Diff"))
	assert.Equal(t, "Dose", fieldHeader("Dose"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "s1-versions.csv", FileName("S1", "versions", FormatCSV))
	assert.Equal(t, "study-7-v1-vs-v2.xlsx", FileName("Study 7", "v1-vs-v2", FormatXLSX))
	assert.Equal(t, "latest.json", FileName("latest", "", FormatJSON))
}

func TestHTTPHandler(t *testing.T) {
	svc := newTestService(t)
	mux := http.NewServeMux()
	handler := NewHTTPHandler(svc, nil)
	mux.Handle("GET /entities/{id}/export", handler)
	mux.Handle("GET /entities/{id}/compare/export", handler)
	mux.Handle("GET /export/latest", handler)

	tests := []struct {
		name        string
		target      string
		status      int
		contentType string
		disposition string
	}{
		{"versions", "/entities/S1/export?format=json", http.StatusOK, "application/json", `attachment; filename="s1-versions.json"`},
		{"comparison", "/entities/S1/compare/export?a=1&b=3", http.StatusOK, "text/csv", `attachment; filename="s1-v1-vs-v3.csv"`},
		{"latest", "/export/latest?format=yaml", http.StatusOK, "application/yaml", `attachment; filename="latest.yaml"`},
		{"unknown entity", "/entities/nope/export", http.StatusNotFound, "", ""},
		{"missing version", "/entities/S1/compare/export?a=1&b=9", http.StatusNotFound, "", ""},
		{"bad version", "/entities/S1/compare/export?a=x&b=1", http.StatusBadRequest, "", ""},
		{"bad format", "/entities/S1/export?format=pdf", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
				assert.Equal(t, tt.disposition, rec.Header().Get("Content-Disposition"))
			}
		})
	}
}
