// Package content loads the course catalog from the configured upstream and
// normalizes it into one read-only tree.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/course-engine/internal/models"
)

var (
	// ErrSourceUnavailable covers unreachable upstreams and malformed payloads
	ErrSourceUnavailable = errors.New("content source unavailable")
	// ErrSchemaMismatch means expected tables, links or fields are absent
	ErrSchemaMismatch = errors.New("content schema mismatch")
	// ErrCatalogNotLoaded is returned before the first successful load
	ErrCatalogNotLoaded = errors.New("catalog not loaded")
)

// PlaceholderTitle replaces missing human-readable titles
const PlaceholderTitle = "Untitled"

// Source produces the canonical course tree
type Source interface {
	LoadCatalog(ctx context.Context) ([]models.Course, error)
}

// Catalog holds the loaded course tree and serves lookups from it.
// The tree is replaced as a whole on Reload and never mutated in place.
type Catalog struct {
	source Source

	mu       sync.RWMutex
	courses  []models.Course
	index    map[string]int
	loadErr  error
	loadedAt time.Time
}

// NewCatalog creates a catalog backed by source. Call Reload to populate it.
func NewCatalog(source Source) *Catalog {
	return &Catalog{source: source, loadErr: ErrCatalogNotLoaded}
}

// Reload fetches the tree from the source. On failure the previous tree is
// discarded so callers never see a stale catalog next to an error.
func (c *Catalog) Reload(ctx context.Context) error {
	courses, err := c.source.LoadCatalog(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.courses = nil
		c.index = nil
		c.loadErr = err
		slog.Error("failed to load catalog", "error", err)
		return err
	}

	index := make(map[string]int, len(courses))
	for i, course := range courses {
		if _, dup := index[course.ID]; dup {
			c.loadErr = fmt.Errorf("%w: duplicate course id %q", ErrSchemaMismatch, course.ID)
			c.courses = nil
			c.index = nil
			return c.loadErr
		}
		index[course.ID] = i
	}

	c.courses = courses
	c.index = index
	c.loadErr = nil
	c.loadedAt = time.Now().UTC()

	slog.Info("catalog loaded", "courses", len(courses))
	return nil
}

// Courses returns the full catalog or the last load error
func (c *Catalog) Courses() ([]models.Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.courses, nil
}

// Course returns a course by id. A nil course with nil error means not found.
func (c *Catalog) Course(id string) (*models.Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	i, ok := c.index[id]
	if !ok {
		return nil, nil
	}
	course := c.courses[i]
	return &course, nil
}

// Lesson resolves a lesson by its composite key
func (c *Catalog) Lesson(key models.LessonKey) (*models.Course, *models.Lesson, error) {
	course, err := c.Course(key.CourseID)
	if err != nil || course == nil {
		return nil, nil, err
	}
	_, lesson := course.FindLesson(key.ModuleID, key.LessonID)
	return course, lesson, nil
}

// LoadedAt returns the time of the last successful load
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Ping reports whether a catalog is available
func (c *Catalog) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErr
}

// sortModules orders modules and their lessons by position, ties by id
func sortModules(modules []models.Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Position != modules[j].Position {
			return modules[i].Position < modules[j].Position
		}
		return modules[i].ID < modules[j].ID
	})
	for i := range modules {
		lessons := modules[i].Lessons
		sort.SliceStable(lessons, func(a, b int) bool {
			if lessons[a].Position != lessons[b].Position {
				return lessons[a].Position < lessons[b].Position
			}
			return lessons[a].ID < lessons[b].ID
		})
	}
}
