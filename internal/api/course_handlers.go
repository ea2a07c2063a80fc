package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/projection"
)

// Course handlers serve the catalog projected with the caller's progress

// courseViews loads the catalog (or one course) and the caller's progress in
// parallel and projects them. With strict unset a progress failure degrades
// to an unprojected tree instead of failing the request.
func (s *Server) courseViews(ctx context.Context, identity *models.Identity, courseID string, strict bool) ([]models.CourseView, error) {
	var (
		courses  []models.Course
		records  []models.ProgressRecord
		unlocked func(models.LessonKey) bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if courseID == "" {
			all, err := s.Catalog.Courses()
			courses = all
			return err
		}
		course, err := s.Catalog.Course(courseID)
		if err != nil {
			return err
		}
		if course != nil {
			courses = []models.Course{*course}
		}
		return nil
	})
	g.Go(func() error {
		var (
			recs []models.ProgressRecord
			err  error
		)
		if courseID == "" {
			recs, err = s.Progress.ListProgress(gctx, identity)
		} else {
			recs, err = s.Progress.GetLessonProgress(gctx, identity, courseID)
		}
		if err != nil {
			if strict {
				return err
			}
			slog.Warn("progress unavailable, serving catalog without it", "error", err)
			return nil
		}
		records = recs
		return nil
	})
	g.Go(func() error {
		unlocked = s.unlocker(gctx, identity)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := projection.Project(courses, records)
	for i := range views {
		projection.ApplyAccess(&views[i], unlocked)
	}
	return views, nil
}

// courseView projects a single course; nil means not found
func (s *Server) courseView(ctx context.Context, identity *models.Identity, courseID string, strict bool) (*models.CourseView, error) {
	views, err := s.courseViews(ctx, identity, courseID, strict)
	if err != nil || len(views) == 0 {
		return nil, err
	}
	return &views[0], nil
}

// unlocker decides which paid lessons the caller may open. Premium and admin
// roles open everything, otherwise redeemed learning paths do.
func (s *Server) unlocker(ctx context.Context, identity *models.Identity) func(models.LessonKey) bool {
	if identity == nil {
		return nil
	}
	if identity.HasRole(models.RolePremium) || identity.HasRole(models.RoleAdmin) {
		return func(models.LessonKey) bool { return true }
	}

	paths, err := s.Store.ListLearningPaths(ctx, identity.ID)
	if err != nil {
		slog.Warn("failed to load learning paths, paid lessons stay locked", "error", err, "user_id", identity.ID)
		return nil
	}
	granted := make(map[string]bool)
	for _, p := range paths {
		for _, id := range p.LessonIDs {
			granted[id] = true
		}
	}
	return func(key models.LessonKey) bool { return granted[key.String()] }
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	views, err := s.courseViews(r.Context(), identity(r), "", false)
	if err != nil {
		s.respondServiceError(w, r, err, "list courses")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"courses": views,
		"total":   len(views),
	})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	view, err := s.courseView(r.Context(), identity(r), courseID, false)
	if err != nil {
		s.respondServiceError(w, r, err, "get course")
		return
	}
	if view == nil {
		respondError(w, http.StatusNotFound, "not_found", "course not found")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

type lessonResponse struct {
	CourseID  string             `json:"course_id"`
	ModuleID  string             `json:"module_id"`
	Lesson    *models.LessonView `json:"lesson"`
	QuizState string             `json:"quiz_state,omitempty"`
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	key := lessonKey(r)
	caller := identity(r)

	view, err := s.courseView(r.Context(), caller, key.CourseID, false)
	if err != nil {
		s.respondServiceError(w, r, err, "get lesson")
		return
	}
	if view == nil {
		respondError(w, http.StatusNotFound, "not_found", "course not found")
		return
	}
	lesson, ok := projection.LessonView(*view, key.ModuleID, key.LessonID)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "lesson not found")
		return
	}

	resp := lessonResponse{CourseID: key.CourseID, ModuleID: key.ModuleID, Lesson: lesson}
	if caller != nil && !lesson.Locked {
		_, canonical, err := s.Catalog.Lesson(key)
		if err == nil && canonical != nil && canonical.Quiz != nil {
			session := s.Sessions.Open(caller, key, canonical.Quiz, s.Progress, lesson.Completed)
			resp.QuizState = string(session.State())
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	course, err := s.Catalog.Course(courseID)
	if err != nil {
		s.respondServiceError(w, r, err, "start course")
		return
	}
	if course == nil {
		respondError(w, http.StatusNotFound, "not_found", "course not found")
		return
	}

	rec, err := s.Progress.StartCourse(r.Context(), identity(r), courseID)
	if err != nil {
		s.respondServiceError(w, r, err, "start course")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetCourseProgress(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	caller := identity(r)

	var (
		records []models.ProgressRecord
		course  *models.CourseProgressRecord
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		records, err = s.Progress.GetLessonProgress(gctx, caller, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		course, err = s.Progress.CourseProgress(gctx, caller, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondServiceError(w, r, err, "get progress")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lessons": records,
		"course":  course,
	})
}

func (s *Server) handleMyProgress(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)

	var (
		views   []models.CourseView
		courses []models.CourseProgressRecord
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		views, err = s.courseViews(gctx, caller, "", true)
		return err
	})
	g.Go(func() error {
		var err error
		courses, err = s.Progress.ListCourseProgress(gctx, caller)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondServiceError(w, r, err, "get progress")
		return
	}

	completed := 0
	for _, v := range views {
		if projection.IsComplete(v) {
			completed++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"courses":           views,
		"course_progress":   courses,
		"completed_courses": completed,
	})
}

// completeCourseIfDone runs the course completion pass after a lesson write.
// It re-reads progress, and marks the course complete when every lesson is done.
func (s *Server) completeCourseIfDone(ctx context.Context, caller *models.Identity, courseID string) (*models.CourseView, error) {
	view, err := s.courseView(ctx, caller, courseID, true)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("course %s disappeared from catalog", courseID)
	}
	if projection.IsComplete(*view) {
		if err := s.Progress.CompleteCourse(ctx, caller, courseID); err != nil {
			return view, err
		}
	}
	return view, nil
}
