package export

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/verstore/internal/domain"
)

// Handler serves export downloads. It expects to be mounted on patterns that
// bind {id}: ".../{id}/export" and ".../{id}/compare/export". Any other path
// downloads the latest version of every entity.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHTTPHandler(service *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	entityID := strings.TrimSpace(r.PathValue("id"))
	switch {
	case strings.HasSuffix(path, "/compare/export") && entityID != "":
		h.handleComparison(w, r, entityID, format)
	case strings.HasSuffix(path, "/export") && entityID != "":
		h.handleVersions(w, r, entityID, format)
	default:
		h.handleLatest(w, r, format)
	}
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request, entityID string, format Format) {
	order, err := domain.ParseSortOrder(r.URL.Query().Get("order"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if err := h.service.WriteVersions(r.Context(), &buf, entityID, format, order); err != nil {
		h.fail(w, r, err)
		return
	}
	serveFile(w, FileName(entityID, "versions", format), format, buf.Bytes())
}

func (h *Handler) handleComparison(w http.ResponseWriter, r *http.Request, entityID string, format Format) {
	a, err := versionParam(r, "a")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := versionParam(r, "b")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if err := h.service.WriteComparison(r.Context(), &buf, entityID, a, b, format); err != nil {
		h.fail(w, r, err)
		return
	}
	serveFile(w, FileName(entityID, fmt.Sprintf("v%d-vs-v%d", a, b), format), format, buf.Bytes())
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request, format Format) {
	var buf bytes.Buffer
	if err := h.service.WriteLatest(r.Context(), &buf, format); err != nil {
		h.fail(w, r, err)
		return
	}
	serveFile(w, FileName("latest", "", format), format, buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "export failed", "path", r.URL.Path, "err", err)
	}
	http.Error(w, err.Error(), status)
}

// statusFor maps domain errors to HTTP status codes.
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

func versionParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("query parameter %s is required", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func serveFile(w http.ResponseWriter, filename string, format Format, payload []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
