// Package cleanup evicts idle quiz sessions. Sweeps piggyback on incoming
// requests; nothing runs in the background.
package cleanup

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Sessions is the part of the session registry the cleaner works on
type Sessions interface {
	EvictIdle(cutoff time.Time) int
}

// Cleaner drops sessions idle longer than the TTL, at most once per interval
type Cleaner struct {
	sessions Sessions
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

// NewCleaner creates a new cleaner
func NewCleaner(sessions Sessions, interval, idleTTL time.Duration) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}

	return &Cleaner{
		sessions: sessions,
		interval: interval,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Middleware sweeps before serving the request when the interval has passed
func (c *Cleaner) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.MaybeCleanup()
		next.ServeHTTP(w, r)
	})
}

// MaybeCleanup runs Cleanup unless a sweep happened within the interval.
// It reports whether a sweep ran.
func (c *Cleaner) MaybeCleanup() bool {
	now := c.now()

	c.mu.Lock()
	if now.Sub(c.lastSweep) < c.interval {
		c.mu.Unlock()
		return false
	}
	c.lastSweep = now
	c.mu.Unlock()

	c.Cleanup()
	return true
}

// Cleanup evicts sessions idle longer than the TTL. Sessions holding a
// completion that still awaits persistence are kept for the caller to sync.
func (c *Cleaner) Cleanup() int {
	evicted := c.sessions.EvictIdle(c.now().Add(-c.idleTTL))
	if evicted > 0 {
		slog.Info("idle sessions evicted", "count", evicted, "idle_ttl", c.idleTTL)
	} else {
		slog.Debug("no idle sessions found")
	}
	return evicted
}
