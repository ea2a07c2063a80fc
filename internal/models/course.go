package models

import (
	"fmt"
	"strings"
)

// Level is the difficulty of a course or lesson. Values are ordered.
type Level int

const (
	LevelStarter Level = iota
	LevelAdvanced
	LevelProfessional
)

var levelNames = [...]string{"starter", "advanced", "professional"}

// ParseLevel converts a level name into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "starter":
		return LevelStarter, nil
	case "advanced":
		return LevelAdvanced, nil
	case "professional":
		return LevelProfessional, nil
	}
	return LevelStarter, fmt.Errorf("unknown level %q", s)
}

func (l Level) String() string {
	if l < LevelStarter || l > LevelProfessional {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Less reports whether l is easier than other
func (l Level) Less(other Level) bool {
	return l < other
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AccessTier gates content independently of completion
type AccessTier string

const (
	AccessFree AccessTier = "free"
	AccessPaid AccessTier = "paid"
)

// IsPaid returns true for premium content
func (a AccessTier) IsPaid() bool {
	return a == AccessPaid
}

// Course is the root of the canonical content tree
type Course struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image,omitempty"`
	Level       Level      `json:"level"`
	Access      AccessTier `json:"access"`
	Modules     []Module   `json:"modules"`
}

// LessonCount returns the number of lessons across all modules
func (c *Course) LessonCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// FindLesson looks up a lesson by its module-scoped key
func (c *Course) FindLesson(moduleID, lessonID string) (*Module, *Lesson) {
	for i := range c.Modules {
		m := &c.Modules[i]
		if m.ID != moduleID {
			continue
		}
		for j := range m.Lessons {
			if m.Lessons[j].ID == lessonID {
				return m, &m.Lessons[j]
			}
		}
		return m, nil
	}
	return nil, nil
}

// Module (chapter) groups lessons in display order
type Module struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Position    int      `json:"position"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson is a single unit of content. Its id is unique within the owning module only.
type Lesson struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Content         string     `json:"content"`
	Image           string     `json:"image,omitempty"`
	Access          AccessTier `json:"access"`
	Level           Level      `json:"level"`
	Position        int        `json:"position"`
	Quiz            *Quiz      `json:"quiz,omitempty"`
}

// Quiz is a single question with one correct option
type Quiz struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
}

// Evaluate checks the selected option index
func (q *Quiz) Evaluate(selected int) bool {
	return q != nil && selected == q.CorrectAnswer
}

// Validate checks that the correct answer points at an option
func (q *Quiz) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("quiz question is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("quiz needs at least two options")
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("correct_answer %d out of range", q.CorrectAnswer)
	}
	return nil
}
