package models

import (
	"crypto/rand"
	"strings"
	"time"
)

// AccessCodeLength is the length of generated access codes
const AccessCodeLength = 8

const accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AccessCode grants a set of lessons outside the free/paid tiers. LessonIDs
// hold "course/module/lesson" references, see LessonKey.String.
type AccessCode struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	LessonIDs []string  `json:"lesson_ids"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LearningPath is a user's saved selection of lessons, usually from a redeemed code
type LearningPath struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	LessonIDs  []string  `json:"lesson_ids"`
	AccessCode string    `json:"access_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Includes checks whether the path grants the lesson
func (p *LearningPath) Includes(key LessonKey) bool {
	ref := key.String()
	for _, id := range p.LessonIDs {
		if id == ref {
			return true
		}
	}
	return false
}

// GenerateAccessCode returns a random code of AccessCodeLength chars from [A-Z0-9]
func GenerateAccessCode() (string, error) {
	buf := make([]byte, AccessCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeAccessCode uppercases and trims user input
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
