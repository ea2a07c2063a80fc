package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/certificate"
	"github.com/terra-clan/course-engine/internal/content"
	"github.com/terra-clan/course-engine/internal/health"
	"github.com/terra-clan/course-engine/internal/progress"
	"github.com/terra-clan/course-engine/internal/storage"
	"github.com/terra-clan/course-engine/internal/workflow"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps package errors to status codes
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		respondError(w, http.StatusUnauthorized, "auth_required", "sign in to continue")
	case errors.Is(err, content.ErrSchemaMismatch):
		respondError(w, http.StatusServiceUnavailable, "schema_mismatch", "course content is malformed")
	case errors.Is(err, content.ErrSourceUnavailable), errors.Is(err, content.ErrCatalogNotLoaded):
		respondError(w, http.StatusServiceUnavailable, "source_unavailable", "course content is unavailable")
	case errors.Is(err, workflow.ErrNoQuiz):
		respondError(w, http.StatusConflict, "no_quiz", "lesson has no quiz")
	case errors.Is(err, workflow.ErrInvalidOption):
		respondError(w, http.StatusBadRequest, "invalid_option", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, certificate.ErrRender):
		slog.Error("failed to "+op, "error", err, "request_id", middleware.GetReqID(r.Context()))
		respondError(w, http.StatusInternalServerError, "render_error", "certificate could not be rendered")
	case errors.Is(err, storage.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", "record already exists")
	case errors.Is(err, progress.ErrPersistence):
		slog.Error("failed to "+op, "error", err, "request_id", middleware.GetReqID(r.Context()))
		respondError(w, http.StatusServiceUnavailable, "persistence_error", "progress storage is unavailable")
	default:
		slog.Error("failed to "+op, "error", err, "request_id", middleware.GetReqID(r.Context()))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	statuses, healthy := health.Report(s.Health.HealthCheckAll(r.Context()))
	if !healthy {
		slog.Warn("readiness check failed", "checks", statuses)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(apiResponse{
			Success: false,
			Data:    map[string]interface{}{"status": "not_ready", "checks": statuses},
			Error:   &apiError{Code: "not_ready", Message: "service not ready"},
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": statuses,
	})
}

// Theme handler

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Theme)
}
