package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/projection"
	"github.com/terra-clan/course-engine/internal/workflow"
)

// Quiz session handlers drive the completion workflow of one lesson

type submitQuizRequest struct {
	SelectedIndex *int `json:"selected_index" validate:"required,min=0"`
}

type quizResponse struct {
	workflow.Snapshot
	ModuleProgress  float64 `json:"module_progress"`
	CourseProgress  float64 `json:"course_progress"`
	CourseCompleted bool    `json:"course_completed"`
}

func (r *quizResponse) applyView(view *models.CourseView, moduleID string) {
	if view == nil {
		return
	}
	r.CourseProgress = view.Progress
	r.CourseCompleted = projection.IsComplete(*view)
	for _, m := range view.Modules {
		if m.ID == moduleID {
			r.ModuleProgress = m.Progress
			break
		}
	}
}

// lessonSession resolves the lesson and returns the caller's session for it.
// On failure the error response has been written.
func (s *Server) lessonSession(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	key := lessonKey(r)
	caller := identity(r)

	view, err := s.courseView(r.Context(), caller, key.CourseID, false)
	if err != nil {
		s.respondServiceError(w, r, err, "open lesson")
		return nil, false
	}
	if view == nil {
		respondError(w, http.StatusNotFound, "not_found", "course not found")
		return nil, false
	}
	lesson, ok := projection.LessonView(*view, key.ModuleID, key.LessonID)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "lesson not found")
		return nil, false
	}
	if lesson.Locked {
		respondError(w, http.StatusForbidden, "lesson_locked", "this lesson requires an access code or premium access")
		return nil, false
	}

	_, canonical, err := s.Catalog.Lesson(key)
	if err != nil {
		s.respondServiceError(w, r, err, "open lesson")
		return nil, false
	}
	if canonical == nil || canonical.Quiz == nil {
		s.respondServiceError(w, r, workflow.ErrNoQuiz, "open lesson")
		return nil, false
	}

	return s.Sessions.Open(caller, key, canonical.Quiz, s.Progress, lesson.Completed), true
}

func (s *Server) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lessonSession(w, r)
	if !ok {
		return
	}

	if err := session.StartQuiz(); err != nil {
		s.respondServiceError(w, r, err, "start quiz")
		return
	}

	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req submitQuizRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, ok := s.lessonSession(w, r)
	if !ok {
		return
	}

	// Submitting straight from the lesson view opens the quiz first
	if session.State() == workflow.StateViewing {
		if err := session.StartQuiz(); err != nil && !errors.Is(err, workflow.ErrInvalidTransition) {
			s.respondServiceError(w, r, err, "submit quiz")
			return
		}
	}

	if err := session.Select(*req.SelectedIndex); err != nil {
		s.respondServiceError(w, r, err, "submit quiz")
		return
	}

	key := lessonKey(r)
	caller := identity(r)

	correct, err := session.Submit(r.Context())
	if err != nil && !correct {
		s.respondServiceError(w, r, err, "submit quiz")
		return
	}

	resp := quizResponse{Snapshot: session.Snapshot()}
	if !correct {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	if err != nil {
		// The write failed; show the optimistic completion and let the
		// client sync later
		resp.applyView(s.optimisticView(r.Context(), caller, key), key.ModuleID)
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	view, err := s.completeCourseIfDone(r.Context(), caller, key.CourseID)
	if err != nil {
		slog.Error("course completion pass failed",
			"error", err,
			"user_id", caller.ID,
			"course_id", key.CourseID,
		)
	}
	if view == nil {
		view = s.optimisticView(r.Context(), caller, key)
	}
	resp.applyView(view, key.ModuleID)

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetryQuiz(w http.ResponseWriter, r *http.Request) {
	key := lessonKey(r)
	caller := identity(r)

	session, ok := s.Sessions.Get(caller.ID, key)
	if !ok {
		respondError(w, http.StatusNotFound, "no_session", "open the lesson quiz first")
		return
	}

	if err := session.Retry(); err != nil {
		s.respondServiceError(w, r, err, "retry quiz")
		return
	}

	respondJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleSyncQuiz(w http.ResponseWriter, r *http.Request) {
	key := lessonKey(r)
	caller := identity(r)

	session, ok := s.Sessions.Get(caller.ID, key)
	if !ok {
		respondError(w, http.StatusNotFound, "no_session", "open the lesson quiz first")
		return
	}

	if err := session.Sync(r.Context()); err != nil {
		resp := quizResponse{Snapshot: session.Snapshot()}
		resp.applyView(s.optimisticView(r.Context(), caller, key), key.ModuleID)
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	resp := quizResponse{Snapshot: session.Snapshot()}
	view, err := s.completeCourseIfDone(r.Context(), caller, key.CourseID)
	if err != nil {
		slog.Error("course completion pass failed", "error", err, "user_id", caller.ID, "course_id", key.CourseID)
	}
	resp.applyView(view, key.ModuleID)

	respondJSON(w, http.StatusOK, resp)
}

// optimisticView projects the course as if the lesson write had succeeded
func (s *Server) optimisticView(ctx context.Context, caller *models.Identity, key models.LessonKey) *models.CourseView {
	course, err := s.Catalog.Course(key.CourseID)
	if err != nil || course == nil {
		return nil
	}

	records, err := s.Progress.GetLessonProgress(ctx, caller, key.CourseID)
	if err != nil {
		records = nil
	}
	records = append(records, models.ProgressRecord{
		UserID:   caller.ID,
		CourseID: key.CourseID,
		ModuleID: key.ModuleID,
		LessonID: key.LessonID,
	})

	view := projection.ProjectCourse(*course, records)
	return &view
}
