package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/course-engine/internal/models"
)

// StaticSource loads bundled course data from YAML files, one course per file
type StaticSource struct {
	fsys fs.FS
	name string
}

// NewStaticSource reads courses from fsys
func NewStaticSource(fsys fs.FS) *StaticSource {
	return &StaticSource{fsys: fsys, name: "fs"}
}

// NewStaticSourceDir reads courses from a directory on disk
func NewStaticSourceDir(dir string) *StaticSource {
	return &StaticSource{fsys: os.DirFS(dir), name: dir}
}

// courseFile is the YAML layout of a course
type courseFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Image       string       `yaml:"image"`
	Level       string       `yaml:"level"`
	Access      string       `yaml:"access"`
	Position    int          `yaml:"position"`
	Modules     []moduleFile `yaml:"modules"`
}

type moduleFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Position    int          `yaml:"position"`
	Lessons     []lessonFile `yaml:"lessons"`
}

type lessonFile struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Duration    int       `yaml:"duration"`
	Content     string    `yaml:"content"`
	Image       string    `yaml:"image"`
	Access      string    `yaml:"access"`
	Level       string    `yaml:"level"`
	Position    int       `yaml:"position"`
	Quiz        *quizFile `yaml:"quiz"`
}

type quizFile struct {
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectAnswer int      `yaml:"correct_answer"`
}

// LoadCatalog parses every *.yaml / *.yml file at the root and one directory
// deep. Invalid files are skipped with a warning.
func (s *StaticSource) LoadCatalog(ctx context.Context) ([]models.Course, error) {
	slog.Info("loading courses from static source", "source", s.name)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*/*.yaml", "*/*.yml"} {
		matches, err := fs.Glob(s.fsys, pattern)
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	type loaded struct {
		course   models.Course
		position int
	}
	var courses []loaded
	seen := make(map[string]string)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}

		course, position, err := s.loadFile(file)
		if err != nil {
			slog.Warn("failed to load course", "file", file, "error", err)
			continue
		}
		if prev, dup := seen[course.ID]; dup {
			slog.Warn("duplicate course id", "file", file, "id", course.ID, "first", prev)
			continue
		}
		seen[course.ID] = file
		courses = append(courses, loaded{course: course, position: position})
	}

	if len(courses) == 0 {
		return nil, fmt.Errorf("%w: no valid course files in %s", ErrSchemaMismatch, s.name)
	}

	sort.SliceStable(courses, func(i, j int) bool {
		return courses[i].position < courses[j].position
	})

	result := make([]models.Course, 0, len(courses))
	for _, c := range courses {
		result = append(result, c.course)
	}

	slog.Info("courses loaded (static)", "count", len(result), "total_files", len(files))
	return result, nil
}

func (s *StaticSource) loadFile(name string) (models.Course, int, error) {
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return models.Course{}, 0, fmt.Errorf("failed to read file: %w", err)
	}

	var cf courseFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return models.Course{}, 0, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cf.ID == "" {
		cf.ID = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if len(cf.Modules) == 0 {
		return models.Course{}, 0, fmt.Errorf("course %q has no modules", cf.ID)
	}

	course, err := cf.toModel()
	if err != nil {
		return models.Course{}, 0, err
	}
	return course, cf.Position, nil
}

func (cf *courseFile) toModel() (models.Course, error) {
	level, err := models.ParseLevel(cf.Level)
	if err != nil {
		return models.Course{}, fmt.Errorf("course %q: %w", cf.ID, err)
	}

	course := models.Course{
		ID:          cf.ID,
		Title:       titleOrPlaceholder(cf.Title),
		Description: cf.Description,
		Image:       cf.Image,
		Level:       level,
		Access:      parseAccess(cf.Access),
		Modules:     make([]models.Module, 0, len(cf.Modules)),
	}

	moduleIDs := make(map[string]bool)
	for i, mf := range cf.Modules {
		if mf.ID == "" {
			return models.Course{}, fmt.Errorf("course %q: module %d has no id", cf.ID, i)
		}
		if moduleIDs[mf.ID] {
			return models.Course{}, fmt.Errorf("course %q: duplicate module id %q", cf.ID, mf.ID)
		}
		moduleIDs[mf.ID] = true

		module := models.Module{
			ID:          mf.ID,
			Title:       titleOrPlaceholder(mf.Title),
			Description: mf.Description,
			Position:    positionOr(mf.Position, i),
			Lessons:     make([]models.Lesson, 0, len(mf.Lessons)),
		}

		lessonIDs := make(map[string]bool)
		for j, lf := range mf.Lessons {
			if lf.ID == "" {
				return models.Course{}, fmt.Errorf("module %q: lesson %d has no id", mf.ID, j)
			}
			if lessonIDs[lf.ID] {
				return models.Course{}, fmt.Errorf("module %q: duplicate lesson id %q", mf.ID, lf.ID)
			}
			lessonIDs[lf.ID] = true

			lesson, err := lf.toModel(level, course.Access)
			if err != nil {
				return models.Course{}, fmt.Errorf("module %q: %w", mf.ID, err)
			}
			lesson.Position = positionOr(lf.Position, j)
			module.Lessons = append(module.Lessons, lesson)
		}
		course.Modules = append(course.Modules, module)
	}

	sortModules(course.Modules)
	return course, nil
}

func (lf *lessonFile) toModel(courseLevel models.Level, courseAccess models.AccessTier) (models.Lesson, error) {
	level := courseLevel
	if lf.Level != "" {
		parsed, err := models.ParseLevel(lf.Level)
		if err != nil {
			return models.Lesson{}, fmt.Errorf("lesson %q: %w", lf.ID, err)
		}
		level = parsed
	}

	access := courseAccess
	if lf.Access != "" {
		access = parseAccess(lf.Access)
	}

	lesson := models.Lesson{
		ID:              lf.ID,
		Title:           titleOrPlaceholder(lf.Title),
		Description:     lf.Description,
		DurationMinutes: lf.Duration,
		Content:         lf.Content,
		Image:           lf.Image,
		Access:          access,
		Level:           level,
	}

	if lf.Quiz != nil {
		quiz := &models.Quiz{
			Question:      lf.Quiz.Question,
			Options:       lf.Quiz.Options,
			CorrectAnswer: lf.Quiz.CorrectAnswer,
		}
		if err := quiz.Validate(); err != nil {
			return models.Lesson{}, fmt.Errorf("lesson %q: %w", lf.ID, err)
		}
		lesson.Quiz = quiz
	}
	return lesson, nil
}

func titleOrPlaceholder(title string) string {
	if strings.TrimSpace(title) == "" {
		return PlaceholderTitle
	}
	return title
}

// positionOr keeps file order for entries without an explicit position
func positionOr(position, index int) int {
	if position != 0 {
		return position
	}
	return index + 1
}

func parseAccess(s string) models.AccessTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "premium":
		return models.AccessPaid
	default:
		return models.AccessFree
	}
}
