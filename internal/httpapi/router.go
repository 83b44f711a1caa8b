package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/rpattn/verstore/internal/comparison"
	"github.com/rpattn/verstore/internal/domain"
	"github.com/rpattn/verstore/internal/export"
	"github.com/rpattn/verstore/internal/ingestion"
	"github.com/rpattn/verstore/internal/middleware"
	"github.com/rpattn/verstore/internal/repository"
	"github.com/rpattn/verstore/internal/rollback"
)

// Dependencies are the services the API is built from. Logs may be nil.
type Dependencies struct {
	Store          repository.VersionStore
	Logs           repository.IngestionLogRepository
	Ingestion      *ingestion.Service
	Rollback       *rollback.Engine
	Comparison     *comparison.Engine
	Export         *export.Service
	AllowedOrigins []string
	Logger         *slog.Logger
}

type api struct {
	store      repository.VersionStore
	logs       repository.IngestionLogRepository
	rollback   *rollback.Engine
	comparison *comparison.Engine
	logger     *slog.Logger
}

// NewRouter builds the HTTP surface: JSON endpoints over the version store,
// upload ingestion and export downloads, wrapped with CORS, request logging
// and a per-request latest-version loader.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		store:      deps.Store,
		logs:       deps.Logs,
		rollback:   deps.Rollback,
		comparison: deps.Comparison,
		logger:     logger,
	}

	exportHandler := export.NewHTTPHandler(deps.Export, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("POST /ingest", ingestion.NewHTTPHandler(deps.Ingestion, logger))
	mux.HandleFunc("GET /entities", a.handleListEntities)
	mux.HandleFunc("GET /entities/latest", a.handleListLatest)
	mux.HandleFunc("GET /entities/{id}/latest", a.handleGetLatest)
	mux.HandleFunc("GET /entities/{id}/versions", a.handleListVersions)
	mux.HandleFunc("GET /entities/{id}/versions/{n}", a.handleGetVersion)
	mux.HandleFunc("POST /entities/{id}/rollback", a.handleRollback)
	mux.HandleFunc("GET /entities/{id}/compare", a.handleCompare)
	mux.Handle("GET /entities/{id}/export", exportHandler)
	mux.Handle("GET /entities/{id}/compare/export", exportHandler)
	mux.Handle("GET /export/latest", exportHandler)
	mux.HandleFunc("GET /ingestion/logs", a.handleListLogs)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
	})

	var handler http.Handler = mux
	handler = middleware.LatestLoaderMiddleware(deps.Store)(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)
	return corsHandler.Handler(handler)
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
