package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/course-engine/internal/certificate"
	"github.com/terra-clan/course-engine/internal/projection"
)

func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	caller := identity(r)

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	if format != "pdf" && format != "png" {
		respondError(w, http.StatusBadRequest, "validation_error", "format must be pdf or png")
		return
	}

	view, err := s.courseView(r.Context(), caller, courseID, true)
	if err != nil {
		s.respondServiceError(w, r, err, "issue certificate")
		return
	}
	if view == nil {
		respondError(w, http.StatusNotFound, "not_found", "course not found")
		return
	}
	if !projection.IsComplete(*view) {
		respondError(w, http.StatusConflict, "course_incomplete",
			fmt.Sprintf("course is %.0f%% complete", view.Progress))
		return
	}

	issued := time.Now()
	if rec, err := s.Progress.CourseProgress(r.Context(), caller, courseID); err != nil {
		slog.Warn("failed to read course completion date", "error", err, "course_id", courseID)
	} else if rec.IsCompleted() {
		issued = *rec.CompletedAt
	}

	var doc *certificate.Document
	if format == "png" {
		doc, err = s.Certificates.EmitPNG(*view, *caller, issued)
	} else {
		doc, err = s.Certificates.Emit(*view, *caller, issued)
	}
	if err != nil {
		s.respondServiceError(w, r, err, "render certificate")
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("X-Certificate-Serial", doc.Serial)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		slog.Debug("failed to write certificate", "error", err)
	}
}
