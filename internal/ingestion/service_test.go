package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/repository"
	"github.com/rpattn/verstore/internal/versioning"
)

func newService(store repository.VersionStore) *Service {
	engine := versioning.NewEngine(store)
	return NewService(engine, nil)
}

func TestServiceIngestCSV(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()
	service := newService(store)

	data := "\xEF\xBB\xBFStudyID,Name,Dose,Active,StartDate\n" +
		"S1,A,10,true,2024-01-15\n" +
		",,,,\n" +
		"007,B,2.5,no,\n"

	result, err := service.Ingest(ctx, Request{FileName: "studies.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, "studies.csv", result.Source)
	assert.Equal(t, 2, result.Outcomes[0].Row)
	assert.Equal(t, 4, result.Outcomes[1].Row, "row numbers follow the source file")
	assert.Equal(t, "007", result.Outcomes[1].EntityID)

	s1, err := store.GetLatest(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.String("A"), s1.Fields["Name"])
	assert.Equal(t, domain.Number(10), s1.Fields["Dose"])
	assert.Equal(t, domain.Bool(true), s1.Fields["Active"])
	assert.Equal(t, domain.NewDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)), s1.Fields["StartDate"])

	other, err := store.GetLatest(ctx, "007")
	require.NoError(t, err)
	_, hasStart := other.Fields["StartDate"]
	assert.False(t, hasStart, "blank cells are absent fields")
}

func TestServiceReingestIsUnchanged(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()
	service := newService(store)
	data := "StudyID,Name,Dose\nS1,A,10\n"

	_, err := service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)
	result, err := service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, versioning.StateUnchanged, result.Outcomes[0].State)

	result, err = service.Ingest(ctx, Request{FileName: "a.csv", Data: strings.NewReader("StudyID,Name,Dose\nS1,A,20\n")})
	require.NoError(t, err)
	assert.Equal(t, versioning.StateChanged, result.Outcomes[0].State)
	assert.Equal(t, 2, result.Outcomes[0].VersionNumber)
}

func TestServiceIngestXLSXMatchesCSV(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()
	service := newService(store)

	_, err := service.Ingest(ctx, Request{
		FileName: "first.csv",
		Data:     strings.NewReader("StudyID,Dose,StartDate\nS1,10,2024-01-15\n"),
	})
	require.NoError(t, err)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"StudyID", "Dose", "StartDate"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"S1", 10, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	result, err := service.Ingest(ctx, Request{FileName: "second.xlsx", Data: &buf})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, versioning.StateUnchanged, result.Outcomes[0].State, result.Outcomes[0].Message)
}

func TestServiceIDFieldOverride(t *testing.T) {
	store := repository.NewMemoryVersionStore()
	service := newService(store)

	result, err := service.Ingest(context.Background(), Request{
		FileName: "codes.csv",
		IDField:  "Code",
		Data:     strings.NewReader("Code,Name\nC-1,A\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "C-1", result.Outcomes[0].EntityID)
}

func TestServiceRejectsBadUploads(t *testing.T) {
	service := newService(repository.NewMemoryVersionStore())

	tests := []struct {
		name string
		req  Request
	}{
		{"unsupported format", Request{FileName: "notes.pdf", Data: strings.NewReader("x")}},
		{"missing identifier column", Request{FileName: "a.csv", Data: strings.NewReader("Name,Dose\nA,1\n")}},
		{"empty file", Request{FileName: "a.csv", Data: strings.NewReader("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Ingest(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestServiceReportsCellErrorsPerRow(t *testing.T) {
	service := newService(repository.NewMemoryVersionStore())

	result, err := service.Ingest(context.Background(), Request{
		FileName:        "a.csv",
		ColumnOverrides: map[string]ColumnType{"Dose": ColumnNumber},
		Data:            strings.NewReader("StudyID,Dose\nS1,ten\nS2,2\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, versioning.StateInvalid, result.Outcomes[0].State)
	assert.Contains(t, result.Outcomes[0].Message, "Dose")
	assert.Equal(t, "S1", result.Outcomes[0].EntityID)
	assert.Equal(t, versioning.StateUnseen, result.Outcomes[1].State)
}

func TestInferValue(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Value
	}{
		{"10", domain.Number(10)},
		{"1.5", domain.Number(1.5)},
		{"yes", domain.Bool(true)},
		{"FALSE", domain.Bool(false)},
		{"2024-01-15", domain.NewDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"n/a", domain.String("n/a")},
		{"NaN", domain.String("NaN")},
		{"inf", domain.String("inf")},
		{"-Infinity", domain.String("-Infinity")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, inferValue(tt.raw))
		})
	}
}

func TestNonFiniteNumbersAreNotStoredAsNumbers(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()
	service := newService(store)

	result, err := service.Ingest(ctx, Request{
		FileName: "scores.csv",
		Data:     strings.NewReader(`StudyID,Score
S1,NaN
S2,inf
`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	s1, err := store.GetLatest(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.String("NaN"), s1.Fields["Score"])
	_, err = domain.MarshalValue(s1.Fields["Score"])
	assert.NoError(t, err)

	result, err = service.Ingest(ctx, Request{
		FileName:        "scores.csv",
		ColumnOverrides: map[string]ColumnType{"Score": ColumnNumber},
		Data:            strings.NewReader(`StudyID,Score
S3,Infinity
`),
	})
	require.NoError(t, err)
	assert.Equal(t, versioning.StateInvalid, result.Outcomes[0].State)
	assert.Contains(t, result.Outcomes[0].Message, "Score")
}

func TestBadCellDoesNotRetypeColumn(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryVersionStore()
	service := newService(store)

	_, err := service.Ingest(ctx, Request{
		FileName: "a.csv",
		Data:     strings.NewReader(`StudyID,Dose
S1,10
S2,20
`),
	})
	require.NoError(t, err)

	result, err := service.Ingest(ctx, Request{
		FileName: "b.csv",
		Data:     strings.NewReader(`StudyID,Dose
S1,10
S2,20
S3,n/a
`),
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, versioning.StateUnchanged, result.Outcomes[0].State)
	assert.Equal(t, versioning.StateUnchanged, result.Outcomes[1].State)
	assert.Equal(t, versioning.StateUnseen, result.Outcomes[2].State)
	assert.Equal(t, 1, result.Inserted)

	versions, err := store.ListVersions(ctx, "S1", domain.Ascending)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	s3, err := store.GetLatest(ctx, "S3")
	require.NoError(t, err)
	assert.Equal(t, domain.String("n/a"), s3.Fields["Dose"])
}

func TestSanitizeHeaders(t *testing.T) {
	got := sanitizeHeaders([]string{" StudyID ", "", "meta.color", "Name", "Name"})
	assert.Equal(t, []string{"StudyID", "column_2", "meta_color", "Name", "Name_2"}, got)
}

func TestHTTPHandler(t *testing.T) {
	store := repository.NewMemoryVersionStore()
	handler := NewHTTPHandler(newService(store), nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "studies.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("StudyID,Name,Meta\nS1,A,\"{\"\"color\"\":\"\"red\"\"}\"\n"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("columnTypes", `{"Meta":"json"}`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result versioning.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Inserted)

	latest, err := store.GetLatest(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.Object{"color": domain.String("red")}, latest.Fields["Meta"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
