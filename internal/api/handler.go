// Package api serves the bridge's operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
	"mongo-bridge/internal/format"
	"mongo-bridge/internal/middleware"
)

const maxBodyBytes = 10 << 20

// Bridge is the set of operations the handler exposes.
// Implemented by query.Service.
type Bridge interface {
	TestConnection(ctx context.Context, req domain.TestRequest) domain.TestResult
	Search(ctx context.Context, req domain.SearchRequest) ([]document.Value, error)
	Query(ctx context.Context, req domain.MetricRequest) (format.Result, error)
}

// Handler holds the HTTP handlers for the bridge endpoints.
type Handler struct {
	bridge Bridge
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(bridge Bridge, logger *slog.Logger) *Handler {
	return &Handler{bridge: bridge, logger: logger.With("component", "api")}
}

// TestConnection handles the datasource connectivity check.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req domain.TestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.bridge.TestConnection(r.Context(), req))
}

// Search handles variable and template lookups.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := h.bridge.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// Query handles multi-target metric queries.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req domain.MetricRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.bridge.Query(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	logger := h.logger.With("request_id", middleware.RequestIDFromContext(r.Context()), "path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Message: err.Error()})
}

// decodeJSON reads r's body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
