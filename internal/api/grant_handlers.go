package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/storage"
)

// Access code and learning path handlers

const maxCodeAttempts = 5

type redeemRequest struct {
	Code string `json:"code" validate:"required,len=8,alphanum"`
}

type createAccessCodeRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	LessonIDs []string `json:"lesson_ids" validate:"required,min=1,dive,required"`
}

type grantRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin premium"`
}

func (s *Server) handleRedeemAccessCode(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	caller := identity(r)
	code := models.NormalizeAccessCode(req.Code)

	ac, err := s.Store.GetAccessCode(r.Context(), code)
	if err != nil {
		s.respondServiceError(w, r, err, "redeem access code")
		return
	}
	if ac == nil {
		respondError(w, http.StatusNotFound, "invalid_code", "access code not found")
		return
	}

	path := &models.LearningPath{
		ID:         uuid.NewString(),
		UserID:     caller.ID,
		Name:       ac.Name,
		LessonIDs:  ac.LessonIDs,
		AccessCode: ac.Code,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Store.CreateLearningPath(r.Context(), path); err != nil {
		s.respondServiceError(w, r, err, "redeem access code")
		return
	}

	slog.Info("access code redeemed", "code", ac.Code, "user_id", caller.ID, "lessons", len(ac.LessonIDs))
	respondJSON(w, http.StatusCreated, path)
}

func (s *Server) handleListLearningPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := s.Store.ListLearningPaths(r.Context(), identity(r).ID)
	if err != nil {
		s.respondServiceError(w, r, err, "list learning paths")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"learning_paths": paths,
		"total":          len(paths),
	})
}

func (s *Server) handleDeleteLearningPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.Store.DeleteLearningPath(r.Context(), identity(r).ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "learning path not found")
			return
		}
		s.respondServiceError(w, r, err, "delete learning path")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "learning path deleted",
	})
}

// Admin handlers

func (s *Server) handleCreateAccessCode(w http.ResponseWriter, r *http.Request) {
	var req createAccessCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	refs, ok := s.resolveLessonRefs(w, r, req.LessonIDs)
	if !ok {
		return
	}

	ac := &models.AccessCode{
		Name:      req.Name,
		LessonIDs: refs,
		CreatedBy: identity(r).ID,
		CreatedAt: time.Now().UTC(),
	}

	// Codes are random; retry the rare collision
	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		ac.Code, err = models.GenerateAccessCode()
		if err != nil {
			break
		}
		err = s.Store.CreateAccessCode(r.Context(), ac)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
	}
	if err != nil {
		s.respondServiceError(w, r, err, "create access code")
		return
	}

	slog.Info("access code created", "code", ac.Code, "created_by", ac.CreatedBy, "lessons", len(ac.LessonIDs))
	respondJSON(w, http.StatusCreated, ac)
}

// resolveLessonRefs checks that every "course/module/lesson" reference names a
// catalog lesson and returns the references in canonical form
func (s *Server) resolveLessonRefs(w http.ResponseWriter, r *http.Request, refs []string) ([]string, bool) {
	out := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		key, err := models.ParseLessonKey(ref)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_lesson_ref", err.Error())
			return nil, false
		}
		_, lesson, err := s.Catalog.Lesson(key)
		if err != nil {
			s.respondServiceError(w, r, err, "create access code")
			return nil, false
		}
		if lesson == nil {
			respondError(w, http.StatusBadRequest, "unknown_lesson", "lesson "+key.String()+" not found")
			return nil, false
		}
		if !seen[key.String()] {
			seen[key.String()] = true
			out = append(out, key.String())
		}
	}
	return out, true
}

func (s *Server) handleListAccessCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.Store.ListAccessCodes(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "list access codes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_codes": codes,
		"total":        len(codes),
	})
}

func (s *Server) handleDeleteAccessCode(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeAccessCode(chi.URLParam(r, "code"))

	if err := s.Store.DeleteAccessCode(r.Context(), code); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "access code not found")
			return
		}
		s.respondServiceError(w, r, err, "delete access code")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "access code deleted",
	})
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userId")

	if err := s.Store.AddRole(r.Context(), userID, req.Role); err != nil {
		s.respondServiceError(w, r, err, "grant role")
		return
	}

	slog.Info("role granted", "user_id", userID, "role", req.Role, "granted_by", identity(r).ID)
	respondJSON(w, http.StatusOK, map[string]string{
		"user_id": userID,
		"role":    req.Role,
	})
}

func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	if s.Cache != nil {
		if err := s.Cache.Invalidate(r.Context()); err != nil {
			slog.Warn("failed to invalidate catalog cache", "error", err)
		}
	}

	if err := s.Catalog.Reload(r.Context()); err != nil {
		s.respondServiceError(w, r, err, "reload catalog")
		return
	}

	courses, _ := s.Catalog.Courses()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"courses":   len(courses),
		"loaded_at": s.Catalog.LoadedAt(),
	})
}
