package workflow

import (
	"sync"
	"time"

	"github.com/terra-clan/course-engine/internal/models"
)

type sessionKey struct {
	userID string
	lesson models.LessonKey
}

// Registry holds open sessions per user and lesson. Lock order is r.mu then
// Session.mu; a session never holds its lock during a write.
type Registry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[sessionKey]*Session)}
}

// Open returns the user's session for the lesson, creating it when absent.
// An unfinished session is replaced when the lesson was completed elsewhere.
// identity must not be nil.
func (r *Registry) Open(identity *models.Identity, key models.LessonKey, quiz *models.Quiz, persister Persister, alreadyCompleted bool) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := sessionKey{userID: identity.ID, lesson: key}
	if s, ok := r.sessions[k]; ok {
		if !alreadyCompleted || s.State() == StateCompleted {
			return s
		}
	}

	s := Open(identity, key, quiz, persister, alreadyCompleted)
	r.sessions[k] = s
	return s
}

// Get returns an open session
func (r *Registry) Get(userID string, key models.LessonKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey{userID: userID, lesson: key}]
	return s, ok
}

// Close drops a session
func (r *Registry) Close(userID string, key models.LessonKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionKey{userID: userID, lesson: key})
}

// Pending returns the user's sessions awaiting persistence
func (r *Registry) Pending(userID string) []*Session {
	var pending []*Session
	for k, s := range r.snapshot() {
		if k.userID == userID && s.PendingSync() {
			pending = append(pending, s)
		}
	}
	return pending
}

// AllPending returns every session awaiting persistence
func (r *Registry) AllPending() []*Session {
	var pending []*Session
	for _, s := range r.snapshot() {
		if s.PendingSync() {
			pending = append(pending, s)
		}
	}
	return pending
}

// EvictIdle drops sessions inactive since before cutoff. Sessions with a
// pending or in-flight completion are kept. Returns the number evicted.
func (r *Registry) EvictIdle(cutoff time.Time) int {
	var idle []sessionKey
	sessions := r.snapshot()
	for k, s := range sessions {
		if s.evictable(cutoff) {
			idle = append(idle, k)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for _, k := range idle {
		// the session may have been replaced meanwhile
		if r.sessions[k] != sessions[k] {
			continue
		}
		delete(r.sessions, k)
		evicted++
	}
	return evicted
}

// snapshot copies the session map so sessions are inspected without r.mu
func (r *Registry) snapshot() map[sessionKey]*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make(map[sessionKey]*Session, len(r.sessions))
	for k, s := range r.sessions {
		sessions[k] = s
	}
	return sessions
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
