package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/models"
)

// identity returns the caller or nil for anonymous requests
func identity(r *http.Request) *models.Identity {
	return auth.IdentityFromContext(r.Context())
}

// lessonKey reads the lesson route parameters
func lessonKey(r *http.Request) models.LessonKey {
	return models.LessonKey{
		CourseID: chi.URLParam(r, "courseId"),
		ModuleID: chi.URLParam(r, "moduleId"),
		LessonID: chi.URLParam(r, "lessonId"),
	}
}
