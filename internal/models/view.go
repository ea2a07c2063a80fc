package models

// CourseView is a course merged with one user's progress. It is never persisted.
type CourseView struct {
	ID                   string       `json:"id"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	Image                string       `json:"image,omitempty"`
	Level                Level        `json:"level"`
	Access               AccessTier   `json:"access"`
	Modules              []ModuleView `json:"modules"`
	CompletedLessons     int          `json:"completed_lessons"`
	TotalLessons         int          `json:"total_lessons"`
	TotalDurationMinutes int          `json:"total_duration_minutes"`
	Progress             float64      `json:"progress"`
}

// ModuleView is a module with aggregate progress
type ModuleView struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Position         int          `json:"position"`
	Lessons          []LessonView `json:"lessons"`
	CompletedLessons int          `json:"completed_lessons"`
	TotalLessons     int          `json:"total_lessons"`
	Progress         float64      `json:"progress"`
}

// LessonView is a lesson annotated with completion
type LessonView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Content         string     `json:"content,omitempty"`
	Image           string     `json:"image,omitempty"`
	Access          AccessTier `json:"access"`
	Level           Level      `json:"level"`
	Quiz            *QuizView  `json:"quiz,omitempty"`
	Completed       bool       `json:"completed"`
	Locked          bool       `json:"locked,omitempty"`
}

// QuizView hides the correct answer from clients
type QuizView struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}
