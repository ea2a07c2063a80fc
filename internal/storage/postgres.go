package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/course-engine/internal/models"
)

// PostgresRepository implements ProgressRepository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// ListLessonProgress returns completed lessons for a user
func (r *PostgresRepository) ListLessonProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error) {
	query := `
		SELECT user_id, course_id, module_id, lesson_id, completed_at, last_accessed_at
		FROM user_lesson_progress
		WHERE user_id = $1 AND ($2 = '' OR course_id = $2)
		ORDER BY completed_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	records := []models.ProgressRecord{}
	for rows.Next() {
		var rec models.ProgressRecord
		if err := rows.Scan(&rec.UserID, &rec.CourseID, &rec.ModuleID, &rec.LessonID, &rec.CompletedAt, &rec.LastAccessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lesson progress: %w", err)
	}
	return records, nil
}

// UpsertLessonProgress keeps the first completion time and touches last access
func (r *PostgresRepository) UpsertLessonProgress(ctx context.Context, rec *models.ProgressRecord) error {
	query := `
		INSERT INTO user_lesson_progress (user_id, course_id, module_id, lesson_id, completed_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, course_id, module_id, lesson_id)
		DO UPDATE SET last_accessed_at = EXCLUDED.last_accessed_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.CourseID,
		rec.ModuleID,
		rec.LessonID,
		rec.CompletedAt,
		rec.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lesson progress: %w", err)
	}
	return nil
}

// GetCourseProgress retrieves the course record for a user
func (r *PostgresRepository) GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error) {
	query := `
		SELECT user_id, course_id, started_at, completed_at, last_accessed_at
		FROM user_course_progress
		WHERE user_id = $1 AND course_id = $2
	`

	rec, err := scanCourseProgress(r.pool.QueryRow(ctx, query, userID, courseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get course progress: %w", err)
	}
	return rec, nil
}

// ListCourseProgress returns all course records for a user
func (r *PostgresRepository) ListCourseProgress(ctx context.Context, userID string) ([]models.CourseProgressRecord, error) {
	query := `
		SELECT user_id, course_id, started_at, completed_at, last_accessed_at
		FROM user_course_progress
		WHERE user_id = $1
		ORDER BY last_accessed_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course progress: %w", err)
	}
	defer rows.Close()

	records := []models.CourseProgressRecord{}
	for rows.Next() {
		rec, err := scanCourseProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course progress: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course progress: %w", err)
	}
	return records, nil
}

// CreateCourseProgress relies on UNIQUE (user_id, course_id) so concurrent
// starts converge on one row
func (r *PostgresRepository) CreateCourseProgress(ctx context.Context, rec *models.CourseProgressRecord) (bool, error) {
	query := `
		INSERT INTO user_course_progress (user_id, course_id, started_at, completed_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.CourseID,
		rec.StartedAt,
		nullTime(rec.CompletedAt),
		rec.LastAccessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create course progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TouchCourseProgress updates last_accessed_at
func (r *PostgresRepository) TouchCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	query := `UPDATE user_course_progress SET last_accessed_at = $3 WHERE user_id = $1 AND course_id = $2`

	if _, err := r.pool.Exec(ctx, query, userID, courseID, at); err != nil {
		return fmt.Errorf("failed to touch course progress: %w", err)
	}
	return nil
}

// CompleteCourseProgress marks the course completed, creating the row when the
// user never explicitly started the course
func (r *PostgresRepository) CompleteCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	query := `
		INSERT INTO user_course_progress (user_id, course_id, started_at, completed_at, last_accessed_at)
		VALUES ($1, $2, $3, $3, $3)
		ON CONFLICT (user_id, course_id)
		DO UPDATE SET completed_at = COALESCE(user_course_progress.completed_at, EXCLUDED.completed_at),
		              last_accessed_at = EXCLUDED.last_accessed_at
	`

	if _, err := r.pool.Exec(ctx, query, userID, courseID, at); err != nil {
		return fmt.Errorf("failed to complete course progress: %w", err)
	}
	return nil
}

// GetRoles returns the roles granted to a user
func (r *PostgresRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AddRole grants a role; granting twice is a no-op
func (r *PostgresRepository) AddRole(ctx context.Context, userID, role string) error {
	query := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, userID, role); err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return nil
}

func scanCourseProgress(row pgx.Row) (*models.CourseProgressRecord, error) {
	var rec models.CourseProgressRecord
	if err := row.Scan(&rec.UserID, &rec.CourseID, &rec.StartedAt, &rec.CompletedAt, &rec.LastAccessedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Helper functions

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
