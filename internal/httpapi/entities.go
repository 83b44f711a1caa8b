package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/middleware"
)

// versionView renders a version with native field values and a plain diff.
type versionView struct {
	EntityID       string                    `json:"entityId"`
	VersionNumber  int                       `json:"versionNumber"`
	Fields         map[string]any            `json:"fields"`
	ContentHash    string                    `json:"contentHash"`
	Timestamp      time.Time                 `json:"timestamp"`
	Diff           map[string]map[string]any `json:"diff"`
	Source         domain.VersionSource      `json:"source"`
	RolledBackFrom int                       `json:"rolledBackFrom,omitempty"`
}

func newVersionView(v domain.Version) versionView {
	return versionView{
		EntityID:       v.EntityID,
		VersionNumber:  v.VersionNumber,
		Fields:         v.Fields.Native(),
		ContentHash:    v.ContentHash,
		Timestamp:      v.Timestamp,
		Diff:           v.Diff.Plain(),
		Source:         v.Source,
		RolledBackFrom: v.RolledBackFrom,
	}
}

func newVersionViews(versions []domain.Version) []versionView {
	out := make([]versionView, 0, len(versions))
	for _, v := range versions {
		out = append(out, newVersionView(v))
	}
	return out
}

func (a *api) handleListEntities(w http.ResponseWriter, r *http.Request) {
	ids, err := a.store.ListEntityIDs(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entityIds": ids})
}

// handleListLatest lists every entity's latest version, or only those named
// by a comma separated ids parameter. Unknown ids are omitted.
func (a *api) handleListLatest(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		versions, err := a.store.ListLatest(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newVersionViews(versions))
		return
	}

	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	var latest map[string]domain.Version
	var err error
	if loader := middleware.LatestLoaderFromContext(r.Context()); loader != nil {
		latest, err = loader.LoadMany(r.Context(), ids)
	} else {
		latest, err = a.store.GetLatestMany(r.Context(), ids)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	versions := make([]domain.Version, 0, len(latest))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if v, ok := latest[id]; ok && !seen[id] {
			seen[id] = true
			versions = append(versions, v)
		}
	}
	writeJSON(w, http.StatusOK, newVersionViews(versions))
}

func (a *api) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	version, err := a.store.GetLatest(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVersionView(version))
}

func (a *api) handleListVersions(w http.ResponseWriter, r *http.Request) {
	order, err := domain.ParseSortOrder(r.URL.Query().Get("order"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entityID := r.PathValue("id")
	versions, err := a.store.ListVersions(r.Context(), entityID, order)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(versions) == 0 {
		a.writeError(w, r, fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, newVersionViews(versions))
}

func (a *api) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := parseVersionNumber(r.PathValue("n"), "version")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	version, err := a.store.GetVersion(r.Context(), r.PathValue("id"), n)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVersionView(version))
}

type rollbackPayload struct {
	Version int `json:"version"`
}

func (a *api) handleRollback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload rollbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: invalid payload: %w", domain.ErrValidation, err))
		return
	}
	if payload.Version < 1 {
		a.writeError(w, r, fmt.Errorf("%w: version must be a positive integer", domain.ErrValidation))
		return
	}

	entityID := r.PathValue("id")
	newVersion, err := a.rollback.Rollback(r.Context(), entityID, payload.Version)
	if errors.Is(err, domain.ErrNoOp) {
		writeJSON(w, http.StatusOK, map[string]any{
			"entityId": entityID,
			"noop":     true,
			"version":  newVersion,
			"message":  err.Error(),
		})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entityId": entityID, "newVersion": newVersion})
}

func (a *api) handleCompare(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	first, err := parseVersionNumber(query.Get("a"), "a")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	second, err := parseVersionNumber(query.Get("b"), "b")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entityID := r.PathValue("id")

	if strings.EqualFold(strings.TrimSpace(query.Get("format")), "unified") {
		text, err := a.comparison.Unified(r.Context(), entityID, first, second)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
		return
	}

	rows, err := a.comparison.Compare(r.Context(), entityID, first, second)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entityId": entityID,
		"a":        first,
		"b":        second,
		"rows":     rows,
	})
}

func (a *api) handleListLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "ingestion log is not configured"})
		return
	}
	query := r.URL.Query()

	batchID := uuid.Nil
	if raw := strings.TrimSpace(query.Get("batch")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: invalid batch id: %w", domain.ErrValidation, err))
			return
		}
		batchID = parsed
	}
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := optionalInt(query.Get("offset"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	logs, err := a.logs.List(r.Context(), batchID, limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func parseVersionNumber(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, name, raw)
	}
	return n, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid number %q", domain.ErrValidation, raw)
	}
	return n, nil
}
