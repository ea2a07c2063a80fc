// Package progress reads and writes a user's lesson and course progress.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/httpx"
	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/storage"
)

// ErrPersistence wraps every backend failure surfaced by the service
var ErrPersistence = errors.New("progress persistence failed")

// Service is the progress store client
type Service struct {
	repo    storage.ProgressRepository
	backoff httpx.Backoff
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithStartRetry sets the attempts and base delay used by StartCourse
func WithStartRetry(attempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		s.backoff.MaxAttempts = attempts
		s.backoff.BaseDelay = baseDelay
	}
}

// WithSleep replaces the wait between StartCourse attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		s.backoff.Sleep = sleep
	}
}

// NewService creates a progress service
func NewService(repo storage.ProgressRepository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		backoff: httpx.Backoff{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Retryable:   storage.IsTransient,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLessonProgress returns the caller's lesson records for a course.
// Anonymous callers get an empty list.
func (s *Service) GetLessonProgress(ctx context.Context, identity *models.Identity, courseID string) ([]models.ProgressRecord, error) {
	if identity == nil {
		return []models.ProgressRecord{}, nil
	}

	records, err := s.repo.ListLessonProgress(ctx, identity.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list lesson progress: %w", ErrPersistence, err)
	}
	return records, nil
}

// ListProgress returns the caller's lesson records across all courses
func (s *Service) ListProgress(ctx context.Context, identity *models.Identity) ([]models.ProgressRecord, error) {
	return s.GetLessonProgress(ctx, identity, "")
}

// UpsertLessonCompletion records a completed lesson. Repeating the call
// only refreshes last_accessed_at.
func (s *Service) UpsertLessonCompletion(ctx context.Context, identity *models.Identity, key models.LessonKey) error {
	if identity == nil {
		return auth.ErrAuthRequired
	}

	now := s.now().UTC()
	rec := &models.ProgressRecord{
		UserID:         identity.ID,
		CourseID:       key.CourseID,
		ModuleID:       key.ModuleID,
		LessonID:       key.LessonID,
		CompletedAt:    now,
		LastAccessedAt: now,
	}
	if err := s.repo.UpsertLessonProgress(ctx, rec); err != nil {
		return fmt.Errorf("%w: failed to save lesson completion: %w", ErrPersistence, err)
	}

	slog.Info("lesson completed",
		"user_id", identity.ID,
		"course_id", key.CourseID,
		"module_id", key.ModuleID,
		"lesson_id", key.LessonID,
	)
	return nil
}

// StartCourse opens a course for the caller. An existing record is touched,
// otherwise one is created. Transient backend failures are retried.
func (s *Service) StartCourse(ctx context.Context, identity *models.Identity, courseID string) (*models.CourseProgressRecord, error) {
	if identity == nil {
		return nil, auth.ErrAuthRequired
	}

	var result *models.CourseProgressRecord
	err := httpx.Retry(ctx, "start_course", s.backoff, func(ctx context.Context) error {
		rec, err := s.startOnce(ctx, identity.ID, courseID)
		if err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start course: %w", ErrPersistence, err)
	}
	return result, nil
}

func (s *Service) startOnce(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error) {
	now := s.now().UTC()

	existing, err := s.repo.GetCourseProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.repo.TouchCourseProgress(ctx, userID, courseID, now); err != nil {
			return nil, err
		}
		existing.LastAccessedAt = now
		return existing, nil
	}

	rec := &models.CourseProgressRecord{
		UserID:         userID,
		CourseID:       courseID,
		StartedAt:      now,
		LastAccessedAt: now,
	}
	created, err := s.repo.CreateCourseProgress(ctx, rec)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("course started", "user_id", userID, "course_id", courseID)
		return rec, nil
	}

	// Lost the insert race; the other writer's row wins
	if err := s.repo.TouchCourseProgress(ctx, userID, courseID, now); err != nil {
		return nil, err
	}
	existing, err = s.repo.GetCourseProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return rec, nil
	}
	return existing, nil
}

// CompleteCourse marks the course finished. It is a separate pass from the
// lesson writes and keeps the first completion date.
func (s *Service) CompleteCourse(ctx context.Context, identity *models.Identity, courseID string) error {
	if identity == nil {
		return auth.ErrAuthRequired
	}

	if err := s.repo.CompleteCourseProgress(ctx, identity.ID, courseID, s.now().UTC()); err != nil {
		return fmt.Errorf("%w: failed to complete course: %w", ErrPersistence, err)
	}
	slog.Info("course completed", "user_id", identity.ID, "course_id", courseID)
	return nil
}

// CourseProgress returns the caller's course record or nil
func (s *Service) CourseProgress(ctx context.Context, identity *models.Identity, courseID string) (*models.CourseProgressRecord, error) {
	if identity == nil {
		return nil, nil
	}

	rec, err := s.repo.GetCourseProgress(ctx, identity.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get course progress: %w", ErrPersistence, err)
	}
	return rec, nil
}

// ListCourseProgress returns all course records of the caller
func (s *Service) ListCourseProgress(ctx context.Context, identity *models.Identity) ([]models.CourseProgressRecord, error) {
	if identity == nil {
		return []models.CourseProgressRecord{}, nil
	}

	records, err := s.repo.ListCourseProgress(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list course progress: %w", ErrPersistence, err)
	}
	return records, nil
}
