package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/terra-clan/course-engine/internal/models"
)

// SQLGrantRepository implements GrantRepository on database/sql with lib/pq
type SQLGrantRepository struct {
	db *sql.DB
}

// NewSQLGrantRepository opens a lib/pq connection pool
func NewSQLGrantRepository(ctx context.Context, dsn string, maxOpen, maxIdle int) (*SQLGrantRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLGrantRepository{db: db}, nil
}

// Ping checks database connectivity
func (r *SQLGrantRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the pool
func (r *SQLGrantRepository) Close() error {
	return r.db.Close()
}

// CreateAccessCode stores a new code. An existing code yields ErrConflict.
func (r *SQLGrantRepository) CreateAccessCode(ctx context.Context, code *models.AccessCode) error {
	query := `
		INSERT INTO access_codes (code, name, lesson_ids, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		code.Code,
		code.Name,
		pq.Array(code.LessonIDs),
		nullString(code.CreatedBy),
		code.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create access code: %w", err)
	}
	return nil
}

// GetAccessCode looks up a code; codes are stored uppercase
func (r *SQLGrantRepository) GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error) {
	query := `SELECT code, name, lesson_ids, created_by, created_at FROM access_codes WHERE code = $1`

	ac, err := scanAccessCode(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access code: %w", err)
	}
	return ac, nil
}

// ListAccessCodes returns all codes, newest first
func (r *SQLGrantRepository) ListAccessCodes(ctx context.Context) ([]models.AccessCode, error) {
	query := `SELECT code, name, lesson_ids, created_by, created_at FROM access_codes ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", err)
	}
	defer rows.Close()

	codes := []models.AccessCode{}
	for rows.Next() {
		ac, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access code: %w", err)
		}
		codes = append(codes, *ac)
	}
	return codes, rows.Err()
}

// DeleteAccessCode removes a code
func (r *SQLGrantRepository) DeleteAccessCode(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete access code: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateLearningPath stores a learning path
func (r *SQLGrantRepository) CreateLearningPath(ctx context.Context, path *models.LearningPath) error {
	query := `
		INSERT INTO learning_paths (id, user_id, name, lesson_ids, access_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		path.ID,
		path.UserID,
		path.Name,
		pq.Array(path.LessonIDs),
		nullString(path.AccessCode),
		path.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create learning path: %w", err)
	}
	return nil
}

// ListLearningPaths returns a user's learning paths, newest first
func (r *SQLGrantRepository) ListLearningPaths(ctx context.Context, userID string) ([]models.LearningPath, error) {
	query := `
		SELECT id, user_id, name, lesson_ids, access_code, created_at
		FROM learning_paths
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning paths: %w", err)
	}
	defer rows.Close()

	paths := []models.LearningPath{}
	for rows.Next() {
		var p models.LearningPath
		var accessCode sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, pq.Array(&p.LessonIDs), &accessCode, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning path: %w", err)
		}
		p.AccessCode = accessCode.String
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteLearningPath removes one of the user's learning paths
func (r *SQLGrantRepository) DeleteLearningPath(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM learning_paths WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete learning path: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccessCode(row rowScanner) (*models.AccessCode, error) {
	var ac models.AccessCode
	var createdBy sql.NullString
	if err := row.Scan(&ac.Code, &ac.Name, pq.Array(&ac.LessonIDs), &createdBy, &ac.CreatedAt); err != nil {
		return nil, err
	}
	ac.CreatedBy = createdBy.String
	if ac.LessonIDs == nil {
		ac.LessonIDs = []string{}
	}
	return &ac, nil
}
