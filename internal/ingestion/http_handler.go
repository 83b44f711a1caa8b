package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/verstore/internal/domain"
)

// Handler exposes ingestion as an HTTP endpoint.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHTTPHandler wraps the service with a POST endpoint. The multipart form
// carries "file" plus optional "idField", "headerRow" (0-based) and
// "columnTypes" (JSON object of column name to type).
func NewHTTPHandler(service *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	req := Request{
		FileName: header.Filename,
		IDField:  strings.TrimSpace(r.FormValue("idField")),
		Data:     file,
	}

	if raw := strings.TrimSpace(r.FormValue("headerRow")); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid headerRow: %v", err), http.StatusBadRequest)
			return
		}
		req.HeaderRowIndex = &index
	}

	if raw := strings.TrimSpace(r.FormValue("columnTypes")); raw != "" {
		overrides, err := parseOverrides(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.ColumnOverrides = overrides
	}

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrStoreUnavailable):
			status = http.StatusServiceUnavailable
		}
		h.logger.ErrorContext(r.Context(), "ingestion failed", "file", req.FileName, "err", err)
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseOverrides(raw string) (map[string]ColumnType, error) {
	var named map[string]string
	if err := json.Unmarshal([]byte(raw), &named); err != nil {
		return nil, fmt.Errorf("invalid columnTypes: %w", err)
	}
	overrides := make(map[string]ColumnType, len(named))
	for column, name := range named {
		columnType, err := ParseColumnType(name)
		if err != nil {
			return nil, fmt.Errorf("invalid columnTypes for %s: %w", column, err)
		}
		overrides[column] = columnType
	}
	return overrides, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
