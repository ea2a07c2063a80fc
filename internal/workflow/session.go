// Package workflow drives the quiz-gated completion of a single lesson.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid quiz transition")
	ErrInvalidOption     = errors.New("invalid answer option")
	ErrNoQuiz            = errors.New("lesson has no quiz")
)

// State of an open lesson
type State string

// A correct submission moves straight to Completed, so there is no
// observable submitted-correct state.
const (
	StateViewing            State = "viewing"
	StateAnswering          State = "answering"
	StateSubmittedIncorrect State = "submitted_incorrect"
	StateCompleted          State = "completed"
)

// Persister records a completed lesson
type Persister interface {
	UpsertLessonCompletion(ctx context.Context, identity *models.Identity, key models.LessonKey) error
}

// Snapshot is a read-only copy of the session state
type Snapshot struct {
	Key         models.LessonKey `json:"key"`
	State       State            `json:"state"`
	Selected    *int             `json:"selected_index,omitempty"`
	Correct     *bool            `json:"correct,omitempty"`
	PendingSync bool             `json:"pending_sync"`
	Attempts    int              `json:"attempts"`
}

// Session is one identity's open lesson view
type Session struct {
	mu sync.Mutex

	identity  *models.Identity
	key       models.LessonKey
	quiz      *models.Quiz
	persister Persister

	state       State
	selected    int
	hasSelected bool
	correct     *bool
	pendingSync bool
	writing     bool
	attempts    int
	lastActive  time.Time
}

// Open starts a session in Viewing, or in Completed when the lesson is
// already done
func Open(identity *models.Identity, key models.LessonKey, quiz *models.Quiz, persister Persister, alreadyCompleted bool) *Session {
	s := &Session{
		identity:   identity,
		key:        key,
		quiz:       quiz,
		persister:  persister,
		state:      StateViewing,
		lastActive: time.Now(),
	}
	if alreadyCompleted {
		s.state = StateCompleted
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Key:         s.key,
		State:       s.state,
		Correct:     s.correct,
		PendingSync: s.pendingSync,
		Attempts:    s.attempts,
	}
	if s.hasSelected {
		selected := s.selected
		snap.Selected = &selected
	}
	return snap
}

// StartQuiz moves Viewing to Answering
func (s *Session) StartQuiz() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quiz == nil {
		return ErrNoQuiz
	}
	if s.state != StateViewing {
		return fmt.Errorf("%w: cannot start quiz in state %s", ErrInvalidTransition, s.state)
	}
	s.state = StateAnswering
	s.lastActive = time.Now()
	return nil
}

// Select records the chosen option
func (s *Session) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering {
		return fmt.Errorf("%w: cannot select in state %s", ErrInvalidTransition, s.state)
	}
	if index < 0 || index >= len(s.quiz.Options) {
		return fmt.Errorf("%w: %d", ErrInvalidOption, index)
	}
	s.selected = index
	s.hasSelected = true
	s.lastActive = time.Now()
	return nil
}

// Submit evaluates the selection. A correct answer completes the lesson
// optimistically and persists it once; a failed write leaves the session
// Completed with PendingSync set and returns the error. The session lock is
// not held during the write.
func (s *Session) Submit(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering || !s.hasSelected {
		return false, fmt.Errorf("%w: cannot submit in state %s", ErrInvalidTransition, s.state)
	}
	if s.identity == nil {
		return false, auth.ErrAuthRequired
	}

	s.attempts++
	s.lastActive = time.Now()
	correct := s.quiz.Evaluate(s.selected)
	s.correct = &correct
	if !correct {
		s.state = StateSubmittedIncorrect
		return false, nil
	}

	// Completed before the write is attempted
	s.state = StateCompleted
	if err := s.persist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Retry moves SubmittedIncorrect back to Answering with no selection
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSubmittedIncorrect {
		return fmt.Errorf("%w: cannot retry in state %s", ErrInvalidTransition, s.state)
	}
	s.state = StateAnswering
	s.hasSelected = false
	s.correct = nil
	s.lastActive = time.Now()
	return nil
}

// Sync re-issues the completion write of a pending session. It does nothing
// while another write for the session is in flight.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pendingSync || s.writing {
		return nil
	}
	return s.persist(ctx)
}

// LastActive returns the time of the last state change
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// PendingSync reports whether the completion still awaits persistence
func (s *Session) PendingSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingSync
}

// evictable reports an idle session with no completion pending or in flight
func (s *Session) evictable(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pendingSync && !s.writing && s.lastActive.Before(cutoff)
}

// persist is called with s.mu held. It releases the lock for the duration of
// the write and holds it again on return.
func (s *Session) persist(ctx context.Context) error {
	s.writing = true
	identity, key := s.identity, s.key
	s.mu.Unlock()
	err := s.persister.UpsertLessonCompletion(ctx, identity, key)
	s.mu.Lock()
	s.writing = false

	if err != nil {
		s.pendingSync = true
		slog.Error("failed to persist lesson completion",
			"error", err,
			"user_id", s.identity.ID,
			"course_id", s.key.CourseID,
			"module_id", s.key.ModuleID,
			"lesson_id", s.key.LessonID,
		)
		return fmt.Errorf("failed to persist completion: %w", err)
	}
	s.pendingSync = false
	return nil
}
