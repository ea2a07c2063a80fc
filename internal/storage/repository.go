package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/terra-clan/course-engine/internal/httpx"
	"github.com/terra-clan/course-engine/internal/models"
)

var (
	// ErrNotFound is returned by deletes that match no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key already exists
	ErrConflict = errors.New("record already exists")
	// ErrUnavailable marks a transient backend failure
	ErrUnavailable = errors.New("storage unavailable")
)

// ProgressRepository persists lesson and course progress. Lookups that find
// nothing return nil with a nil error.
type ProgressRepository interface {
	// ListLessonProgress returns the user's lesson records; an empty courseID lists all courses
	ListLessonProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error)
	// UpsertLessonProgress inserts or touches the record keyed by (user, course, module, lesson)
	UpsertLessonProgress(ctx context.Context, rec *models.ProgressRecord) error

	GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error)
	ListCourseProgress(ctx context.Context, userID string) ([]models.CourseProgressRecord, error)
	// CreateCourseProgress inserts a record unless (user, course) exists; created reports which happened
	CreateCourseProgress(ctx context.Context, rec *models.CourseProgressRecord) (created bool, err error)
	TouchCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error
	CompleteCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error

	GetRoles(ctx context.Context, userID string) ([]string, error)
	AddRole(ctx context.Context, userID, role string) error
}

// GrantRepository persists access codes and learning paths
type GrantRepository interface {
	CreateAccessCode(ctx context.Context, code *models.AccessCode) error
	GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error)
	ListAccessCodes(ctx context.Context) ([]models.AccessCode, error)
	DeleteAccessCode(ctx context.Context, code string) error

	CreateLearningPath(ctx context.Context, path *models.LearningPath) error
	ListLearningPaths(ctx context.Context, userID string) ([]models.LearningPath, error)
	DeleteLearningPath(ctx context.Context, userID, id string) error
}

// Repository is the full persistence surface
type Repository interface {
	ProgressRepository
	GrantRepository

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// IsTransient reports failures worth retrying: lost connections, timeouts
// and errors the driver marks safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return httpx.IsNetworkError(err)
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}
