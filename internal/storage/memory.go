package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/course-engine/internal/models"
)

type courseKey struct {
	userID   string
	courseID string
}

type lessonKey struct {
	userID string
	key    models.LessonKey
}

// MemoryRepository keeps everything in process memory. It enforces the same
// natural-key uniqueness as the SQL schema.
type MemoryRepository struct {
	mu      sync.RWMutex
	lessons map[lessonKey]models.ProgressRecord
	courses map[courseKey]models.CourseProgressRecord
	roles   map[string]map[string]bool
	codes   map[string]models.AccessCode
	paths   map[string]models.LearningPath
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lessons: make(map[lessonKey]models.ProgressRecord),
		courses: make(map[courseKey]models.CourseProgressRecord),
		roles:   make(map[string]map[string]bool),
		codes:   make(map[string]models.AccessCode),
		paths:   make(map[string]models.LearningPath),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryRepository) Close() error                   { return nil }

func (r *MemoryRepository) ListLessonProgress(ctx context.Context, userID, courseID string) ([]models.ProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []models.ProgressRecord{}
	for k, rec := range r.lessons {
		if k.userID == userID && (courseID == "" || k.key.CourseID == courseID) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.Before(records[j].CompletedAt)
	})
	return records, nil
}

func (r *MemoryRepository) UpsertLessonProgress(ctx context.Context, rec *models.ProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := lessonKey{userID: rec.UserID, key: rec.Key()}
	if existing, ok := r.lessons[k]; ok {
		existing.LastAccessedAt = rec.LastAccessedAt
		r.lessons[k] = existing
		return nil
	}
	r.lessons[k] = *rec
	return nil
}

func (r *MemoryRepository) GetCourseProgress(ctx context.Context, userID, courseID string) (*models.CourseProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.courses[courseKey{userID, courseID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepository) ListCourseProgress(ctx context.Context, userID string) ([]models.CourseProgressRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []models.CourseProgressRecord{}
	for k, rec := range r.courses {
		if k.userID == userID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastAccessedAt.After(records[j].LastAccessedAt)
	})
	return records, nil
}

func (r *MemoryRepository) CreateCourseProgress(ctx context.Context, rec *models.CourseProgressRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := courseKey{rec.UserID, rec.CourseID}
	if _, ok := r.courses[k]; ok {
		return false, nil
	}
	r.courses[k] = *rec
	return true, nil
}

func (r *MemoryRepository) TouchCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := courseKey{userID, courseID}
	if rec, ok := r.courses[k]; ok {
		rec.LastAccessedAt = at
		r.courses[k] = rec
	}
	return nil
}

func (r *MemoryRepository) CompleteCourseProgress(ctx context.Context, userID, courseID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := courseKey{userID, courseID}
	rec, ok := r.courses[k]
	if !ok {
		rec = models.CourseProgressRecord{UserID: userID, CourseID: courseID, StartedAt: at}
	}
	if rec.CompletedAt == nil {
		completed := at
		rec.CompletedAt = &completed
	}
	rec.LastAccessedAt = at
	r.courses[k] = rec
	return nil
}

func (r *MemoryRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := []string{}
	for role := range r.roles[userID] {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

func (r *MemoryRepository) AddRole(ctx context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roles[userID] == nil {
		r.roles[userID] = make(map[string]bool)
	}
	r.roles[userID][role] = true
	return nil
}

func (r *MemoryRepository) CreateAccessCode(ctx context.Context, code *models.AccessCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[code.Code]; ok {
		return ErrConflict
	}
	stored := *code
	stored.LessonIDs = append([]string{}, code.LessonIDs...)
	r.codes[code.Code] = stored
	return nil
}

func (r *MemoryRepository) GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ac, ok := r.codes[code]
	if !ok {
		return nil, nil
	}
	return &ac, nil
}

func (r *MemoryRepository) ListAccessCodes(ctx context.Context) ([]models.AccessCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]models.AccessCode, 0, len(r.codes))
	for _, ac := range r.codes {
		codes = append(codes, ac)
	}
	sort.Slice(codes, func(i, j int) bool {
		return codes[i].CreatedAt.After(codes[j].CreatedAt)
	})
	return codes, nil
}

func (r *MemoryRepository) DeleteAccessCode(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[code]; !ok {
		return ErrNotFound
	}
	delete(r.codes, code)
	for id, p := range r.paths {
		if p.AccessCode == code {
			p.AccessCode = ""
			r.paths[id] = p
		}
	}
	return nil
}

func (r *MemoryRepository) CreateLearningPath(ctx context.Context, path *models.LearningPath) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.paths[path.ID]; ok {
		return ErrConflict
	}
	stored := *path
	stored.LessonIDs = append([]string{}, path.LessonIDs...)
	r.paths[path.ID] = stored
	return nil
}

func (r *MemoryRepository) ListLearningPaths(ctx context.Context, userID string) ([]models.LearningPath, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := []models.LearningPath{}
	for _, p := range r.paths {
		if p.UserID == userID {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].CreatedAt.After(paths[j].CreatedAt)
	})
	return paths, nil
}

func (r *MemoryRepository) DeleteLearningPath(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.paths[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(r.paths, id)
	return nil
}
