package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/terra-clan/course-engine/internal/models"
)

type gormLessonProgress struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_lesson_progress_key,priority:1"`
	CourseID       string    `gorm:"not null;uniqueIndex:idx_lesson_progress_key,priority:2"`
	ModuleID       string    `gorm:"not null;uniqueIndex:idx_lesson_progress_key,priority:3"`
	LessonID       string    `gorm:"not null;uniqueIndex:idx_lesson_progress_key,priority:4"`
	CompletedAt    time.Time `gorm:"not null"`
	LastAccessedAt time.Time `gorm:"not null"`
}

func (gormLessonProgress) TableName() string { return "user_lesson_progress" }

type gormCourseProgress struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_course_progress_key,priority:1"`
	CourseID       string    `gorm:"not null;uniqueIndex:idx_course_progress_key,priority:2"`
	StartedAt      time.Time `gorm:"not null"`
	CompletedAt    *time.Time
	LastAccessedAt time.Time `gorm:"not null"`
}

func (gormCourseProgress) TableName() string { return "user_course_progress" }

type gormUserRole struct {
	UserID string `gorm:"primaryKey"`
	Role   string `gorm:"primaryKey"`
}

func (gormUserRole) TableName() string { return "user_roles" }

type gormAccessCode struct {
	Code      string `gorm:"primaryKey;size:8"`
	Name      string `gorm:"not null"`
	LessonIDs datatypes.JSON
	CreatedBy string
	CreatedAt time.Time
}

func (gormAccessCode) TableName() string { return "access_codes" }

type gormLearningPath struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	Name       string `gorm:"not null"`
	LessonIDs  datatypes.JSON
	AccessCode string
	CreatedAt  time.Time
}

func (gormLearningPath) TableName() string { return "learning_paths" }

// GormRepository implements Repository on gorm. It backs the embedded SQLite
// mode used for local development and single-node installs.
type GormRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens (or creates) a SQLite database file and migrates it
func NewSQLiteRepository(ctx context.Context, path string) (*GormRepository, error) {
	repo, err := NewGormRepository(ctx, sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"))
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer
	sqlDB, err := repo.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return repo, nil
}

// NewGormRepository opens the dialector and auto-migrates the schema
func NewGormRepository(ctx context.Context, dialector gorm.Dialector) (*GormRepository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&gormLessonProgress{},
		&gormCourseProgress{},
		&gormUserRole{},
		&gormAccessCode{},
		&gormLearningPath{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormRepository{db: db}, nil
}

// Ping checks database connectivity
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormRepository) ListLessonProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if courseID != "" {
		q = q.Where("course_id = ?", courseID)
	}

	var rows []gormLessonProgress
	if err := q.Order("completed_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}

	records := make([]models.ProgressRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.ProgressRecord{
			UserID:         row.UserID,
			CourseID:       row.CourseID,
			ModuleID:       row.ModuleID,
			LessonID:       row.LessonID,
			CompletedAt:    row.CompletedAt,
			LastAccessedAt: row.LastAccessedAt,
		})
	}
	return records, nil
}

func (r *GormRepository) UpsertLessonProgress(ctx context.Context, rec *models.ProgressRecord) error {
	row := gormLessonProgress{
		UserID:         rec.UserID,
		CourseID:       rec.CourseID,
		ModuleID:       rec.ModuleID,
		LessonID:       rec.LessonID,
		CompletedAt:    rec.CompletedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "module_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_accessed_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert lesson progress: %w", err)
	}
	return nil
}

func (r *GormRepository) GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error) {
	var row gormCourseProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get course progress: %w", err)
	}
	rec := row.toModel()
	return &rec, nil
}

func (r *GormRepository) ListCourseProgress(ctx context.Context, userID string) ([]models.CourseProgressRecord, error) {
	var rows []gormCourseProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_accessed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list course progress: %w", err)
	}

	records := make([]models.CourseProgressRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, nil
}

func (r *GormRepository) CreateCourseProgress(ctx context.Context, rec *models.CourseProgressRecord) (bool, error) {
	row := gormCourseProgress{
		UserID:         rec.UserID,
		CourseID:       rec.CourseID,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create course progress: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepository) TouchCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&gormCourseProgress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Update("last_accessed_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to touch course progress: %w", err)
	}
	return nil
}

func (r *GormRepository) CompleteCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row gormCourseProgress
		err := tx.Where("user_id = ? AND course_id = ?", userID, courseID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			completed := at
			return tx.Create(&gormCourseProgress{
				UserID:         userID,
				CourseID:       courseID,
				StartedAt:      at,
				CompletedAt:    &completed,
				LastAccessedAt: at,
			}).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"last_accessed_at": at}
		if row.CompletedAt == nil {
			updates["completed_at"] = at
		}
		return tx.Model(&row).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("failed to complete course progress: %w", err)
	}
	return nil
}

func (r *GormRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	err := r.db.WithContext(ctx).Model(&gormUserRole{}).
		Where("user_id = ?", userID).
		Order("role").
		Pluck("role", &roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	return roles, nil
}

func (r *GormRepository) AddRole(ctx context.Context, userID, role string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&gormUserRole{UserID: userID, Role: role}).Error
	if err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return nil
}

func (r *GormRepository) CreateAccessCode(ctx context.Context, code *models.AccessCode) error {
	ids, err := json.Marshal(nonNil(code.LessonIDs))
	if err != nil {
		return fmt.Errorf("failed to encode lesson ids: %w", err)
	}

	err = r.db.WithContext(ctx).Create(&gormAccessCode{
		Code:      code.Code,
		Name:      code.Name,
		LessonIDs: datatypes.JSON(ids),
		CreatedBy: code.CreatedBy,
		CreatedAt: code.CreatedAt,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create access code: %w", err)
	}
	return nil
}

func (r *GormRepository) GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error) {
	var row gormAccessCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access code: %w", err)
	}
	ac := row.toModel()
	return &ac, nil
}

func (r *GormRepository) ListAccessCodes(ctx context.Context) ([]models.AccessCode, error) {
	var rows []gormAccessCode
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", err)
	}

	codes := make([]models.AccessCode, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.toModel())
	}
	return codes, nil
}

func (r *GormRepository) DeleteAccessCode(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("code = ?", code).Delete(&gormAccessCode{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete access code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&gormLearningPath{}).
			Where("access_code = ?", code).
			Update("access_code", "").Error
	})
}

func (r *GormRepository) CreateLearningPath(ctx context.Context, path *models.LearningPath) error {
	ids, err := json.Marshal(nonNil(path.LessonIDs))
	if err != nil {
		return fmt.Errorf("failed to encode lesson ids: %w", err)
	}

	err = r.db.WithContext(ctx).Create(&gormLearningPath{
		ID:         path.ID,
		UserID:     path.UserID,
		Name:       path.Name,
		LessonIDs:  datatypes.JSON(ids),
		AccessCode: path.AccessCode,
		CreatedAt:  path.CreatedAt,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create learning path: %w", err)
	}
	return nil
}

func (r *GormRepository) ListLearningPaths(ctx context.Context, userID string) ([]models.LearningPath, error) {
	var rows []gormLearningPath
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list learning paths: %w", err)
	}

	paths := make([]models.LearningPath, 0, len(rows))
	for _, row := range rows {
		paths = append(paths, models.LearningPath{
			ID:         row.ID,
			UserID:     row.UserID,
			Name:       row.Name,
			LessonIDs:  decodeIDs(row.LessonIDs),
			AccessCode: row.AccessCode,
			CreatedAt:  row.CreatedAt,
		})
	}
	return paths, nil
}

func (r *GormRepository) DeleteLearningPath(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&gormLearningPath{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete learning path: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (row gormCourseProgress) toModel() models.CourseProgressRecord {
	return models.CourseProgressRecord{
		UserID:         row.UserID,
		CourseID:       row.CourseID,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		LastAccessedAt: row.LastAccessedAt,
	}
}

func (row gormAccessCode) toModel() models.AccessCode {
	return models.AccessCode{
		Code:      row.Code,
		Name:      row.Name,
		LessonIDs: decodeIDs(row.LessonIDs),
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}
}

func decodeIDs(raw datatypes.JSON) []string {
	ids := []string{}
	if len(raw) == 0 {
		return ids
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return []string{}
	}
	return ids
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
