package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionTracker records last-activity per principal and enforces an idle
// timeout that is independent of token expiry: a valid token over a stale
// session is still rejected. State is in-process and mutex-guarded;
// staleness checks run fresh on every request, never cached.
type SessionTracker struct {
	mu       sync.Mutex
	activity map[uuid.UUID]time.Time
	idle     time.Duration
	now      func() time.Time
}

// NewSessionTracker creates a tracker with the given idle timeout.
func NewSessionTracker(idle time.Duration) *SessionTracker {
	return &SessionTracker{
		activity: make(map[uuid.UUID]time.Time),
		idle:     idle,
		now:      time.Now,
	}
}

// Begin starts (or restarts) a session for the principal.
func (s *SessionTracker) Begin(principalID uuid.UUID) {
	s.mu.Lock()
	s.activity[principalID] = s.now()
	s.mu.Unlock()
}

// Touch refreshes last-activity. Returns false if the session has idled
// out (or never began), in which case the session is ended rather than
// silently restarted.
func (s *SessionTracker) Touch(principalID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.activity[principalID]
	if !ok {
		return false
	}

	now := s.now()
	if now.Sub(last) > s.idle {
		delete(s.activity, principalID)
		return false
	}

	s.activity[principalID] = now
	return true
}

// End destroys the session (logout).
func (s *SessionTracker) End(principalID uuid.UUID) {
	s.mu.Lock()
	delete(s.activity, principalID)
	s.mu.Unlock()
}

// LoginThrottle counts consecutive failed login attempts per username and
// locks the account after the threshold is reached inside the window. The
// counters are keyed by username, not per-IP, so distributed
// credential-stuffing still trips the lock. A single success resets the
// counter. Lockout state is also persisted through the PrincipalStore so
// a restart does not unlock an account early.
type LoginThrottle struct {
	mu        sync.Mutex
	attempts  map[string]*attemptWindow
	threshold int
	window    time.Duration
	lockFor   time.Duration
	now       func() time.Time
}

type attemptWindow struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// NewLoginThrottle creates a throttle: threshold consecutive failures
// within window lock the account for lockFor.
func NewLoginThrottle(threshold int, window, lockFor time.Duration) *LoginThrottle {
	return &LoginThrottle{
		attempts:  make(map[string]*attemptWindow),
		threshold: threshold,
		window:    window,
		lockFor:   lockFor,
		now:       time.Now,
	}
}

// Check reports whether a login attempt for username is currently allowed,
// and if not, how long until it is. Must be consulted before password
// verification so a locked account behaves identically for right and
// wrong passwords.
func (t *LoginThrottle) Check(username string) (allowed bool, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.attempts[username]
	if !ok {
		return true, 0
	}

	now := t.now()
	if now.Before(w.lockedUntil) {
		return false, w.lockedUntil.Sub(now)
	}
	return true, 0
}

// RecordAttempt records the outcome of a login attempt. On the failure
// that reaches the threshold it returns the lockout deadline; the caller
// persists it on the principal via UpdateLockoutState.
func (t *LoginThrottle) RecordAttempt(username string, success bool) (lockedUntil *time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if success {
		delete(t.attempts, username)
		return nil
	}

	now := t.now()
	w, ok := t.attempts[username]
	if !ok || now.Sub(w.windowStart) > t.window {
		w = &attemptWindow{windowStart: now}
		t.attempts[username] = w
	}

	w.failures++
	if w.failures >= t.threshold {
		w.lockedUntil = now.Add(t.lockFor)
		until := w.lockedUntil
		return &until
	}
	return nil
}

// Failures returns the current consecutive-failure count for username.
func (t *LoginThrottle) Failures(username string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.attempts[username]; ok {
		return w.failures
	}
	return 0
}

// PersistLockout writes the lockout deadline through the store, logging is
// left to the caller. A persistence failure does not unlock the in-memory
// throttle.
func PersistLockout(ctx context.Context, store PrincipalStore, principalID uuid.UUID, until *time.Time) error {
	return store.UpdateLockoutState(ctx, principalID, until)
}
