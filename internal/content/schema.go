package content

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/course-engine/internal/models"
)

// Schema maps the tabular base layout onto the course tree. Column values are
// addressed by column key, as returned by the rows endpoint.
type Schema struct {
	CourseTable      string `yaml:"course_table"`
	ModuleTable      string `yaml:"module_table"`
	LessonTable      string `yaml:"lesson_table"`
	CourseModuleLink string `yaml:"course_module_link"`
	ModuleLessonLink string `yaml:"module_lesson_link"`

	Course CourseColumns `yaml:"course"`
	Module ModuleColumns `yaml:"module"`
	Lesson LessonColumns `yaml:"lesson"`

	// Levels maps level option ids to levels. Unknown ids fall back to DefaultLevel.
	Levels       map[string]string `yaml:"levels"`
	DefaultLevel string            `yaml:"default_level"`
	// PaidAccessIDs lists cost option ids that mark content as paid
	PaidAccessIDs []string `yaml:"paid_access_ids"`
}

// CourseColumns are the column keys of the course table
type CourseColumns struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Images      string `yaml:"images"`
	Level       string `yaml:"level"`
	Access      string `yaml:"access"`
}

// ModuleColumns are the column keys of the module (chapter) table
type ModuleColumns struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Position    string `yaml:"position"`
}

// LessonColumns are the column keys of the lesson table. ModuleRef and the
// quiz columns are optional; an empty key disables them.
type LessonColumns struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Content      string `yaml:"content"`
	Duration     string `yaml:"duration"`
	Images       string `yaml:"images"`
	Level        string `yaml:"level"`
	Access       string `yaml:"access"`
	Position     string `yaml:"position"`
	ModuleRef    string `yaml:"module_ref"`
	QuizQuestion string `yaml:"quiz_question"`
	QuizOptions  string `yaml:"quiz_options"`
	// QuizAnswer holds the zero-based index of the correct option
	QuizAnswer string `yaml:"quiz_answer"`
}

// DefaultSchema returns the layout of the production course base
func DefaultSchema() Schema {
	return Schema{
		CourseTable:      "IH9A",
		ModuleTable:      "n7qC",
		LessonTable:      "DARI",
		CourseModuleLink: "Jitp",
		ModuleLessonLink: "W2rn",
		Course: CourseColumns{
			ID:          "0000",
			Title:       "LVxv",
			Description: "6lhR",
			Images:      "Ev4v",
			Level:       "Rfrz",
		},
		Module: ModuleColumns{
			ID:       "0000",
			Title:    "zrXG",
			Position: "0Gbu",
		},
		Lesson: LessonColumns{
			ID:          "0000",
			Title:       "920y",
			Description: "pg3S",
			Content:     "y1X4",
			Duration:    "azCf",
			Images:      "m9wb",
			Level:       "2lEO",
			Access:      "UijR",
			Position:    "yt6Q",
		},
		Levels: map[string]string{
			"840548": "starter",
			"194107": "advanced",
		},
		DefaultLevel: "professional",
	}
}

// LoadSchema reads a YAML schema file and overlays it on DefaultSchema
func LoadSchema(path string) (Schema, error) {
	schema := DefaultSchema()
	if path == "" {
		return schema, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("failed to read schema file: %w", err)
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return schema, err
	}
	return schema, nil
}

// Validate checks that the join keys are set
func (s Schema) Validate() error {
	required := map[string]string{
		"course_table":       s.CourseTable,
		"module_table":       s.ModuleTable,
		"lesson_table":       s.LessonTable,
		"course_module_link": s.CourseModuleLink,
		"module_lesson_link": s.ModuleLessonLink,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("schema: %s is required", name)
		}
	}
	if _, err := models.ParseLevel(s.DefaultLevel); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	q := s.Lesson
	if (q.QuizQuestion != "" || q.QuizOptions != "" || q.QuizAnswer != "") &&
		(q.QuizQuestion == "" || q.QuizOptions == "" || q.QuizAnswer == "") {
		return fmt.Errorf("schema: lesson quiz_question, quiz_options and quiz_answer must be set together")
	}
	return nil
}

// HasQuiz reports whether lessons carry quiz columns. Without them no lesson
// can be completed.
func (s Schema) HasQuiz() bool {
	return s.Lesson.QuizQuestion != ""
}

func (s Schema) level(id string) models.Level {
	if name, ok := s.Levels[id]; ok {
		if l, err := models.ParseLevel(name); err == nil {
			return l
		}
	}
	l, _ := models.ParseLevel(s.DefaultLevel)
	return l
}

func (s Schema) access(id string) models.AccessTier {
	for _, paid := range s.PaidAccessIDs {
		if id != "" && id == paid {
			return models.AccessPaid
		}
	}
	return models.AccessFree
}
