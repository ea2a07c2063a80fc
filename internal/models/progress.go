package models

import (
	"fmt"
	"strings"
	"time"
)

// LessonKey is the natural composite key of a lesson within the catalog
type LessonKey struct {
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
}

// String renders the key as a "course/module/lesson" reference
func (k LessonKey) String() string {
	return k.CourseID + "/" + k.ModuleID + "/" + k.LessonID
}

// ParseLessonKey parses a "course/module/lesson" reference
func ParseLessonKey(ref string) (LessonKey, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return LessonKey{}, fmt.Errorf("invalid lesson reference %q: want course/module/lesson", ref)
	}
	return LessonKey{CourseID: parts[0], ModuleID: parts[1], LessonID: parts[2]}, nil
}

// ProgressRecord marks a completed lesson for one user
type ProgressRecord struct {
	UserID         string    `json:"user_id"`
	CourseID       string    `json:"course_id"`
	ModuleID       string    `json:"module_id"`
	LessonID       string    `json:"lesson_id"`
	CompletedAt    time.Time `json:"completed_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Key returns the record's lesson key
func (p ProgressRecord) Key() LessonKey {
	return LessonKey{CourseID: p.CourseID, ModuleID: p.ModuleID, LessonID: p.LessonID}
}

// CourseProgressRecord tracks when a user started and finished a course
type CourseProgressRecord struct {
	UserID         string     `json:"user_id"`
	CourseID       string     `json:"course_id"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

// IsCompleted returns true once the completion pass has run
func (c *CourseProgressRecord) IsCompleted() bool {
	return c != nil && c.CompletedAt != nil
}
