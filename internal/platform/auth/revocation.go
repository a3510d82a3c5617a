package auth

import (
	"sync"
	"time"
)

// RevocationList tracks bearer tokens invalidated before their natural
// expiry (logout, forced sign-out). Entries are keyed by JTI and expire
// with the token itself: once a token is past exp there is no need to keep
// tracking it. Thread-safe for concurrent request handling.
type RevocationList struct {
	mu        sync.RWMutex
	entries   map[string]time.Time // JTI -> token expiry
	done      chan struct{}
	closeOnce sync.Once
}

// NewRevocationList creates a list and starts a background goroutine that
// sweeps expired entries every 5 minutes.
func NewRevocationList() *RevocationList {
	l := &RevocationList{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Revoke marks a token JTI as invalid until expiresAt.
func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	l.mu.Lock()
	l.entries[jti] = expiresAt
	l.mu.Unlock()
}

// IsRevoked reports whether the JTI has been revoked.
func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok
}

// Close stops the background sweeper. Safe to call more than once,
// including concurrently.
func (l *RevocationList) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

func (l *RevocationList) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *RevocationList) sweep() {
	now := time.Now()
	l.mu.Lock()
	for jti, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, jti)
		}
	}
	l.mu.Unlock()
}
