package auth

import (
	"sync"
	"testing"
	"time"
)

func TestRevocationList(t *testing.T) {
	l := NewRevocationList()
	defer l.Close()

	if l.IsRevoked("jti-1") {
		t.Error("unknown JTI reported revoked")
	}

	l.Revoke("jti-1", time.Now().Add(time.Hour))
	if !l.IsRevoked("jti-1") {
		t.Error("revoked JTI not reported")
	}
	if l.IsRevoked("jti-2") {
		t.Error("unrelated JTI reported revoked")
	}
}

func TestRevocationList_SweepDropsExpired(t *testing.T) {
	l := NewRevocationList()
	defer l.Close()

	l.Revoke("expired", time.Now().Add(-time.Minute))
	l.Revoke("live", time.Now().Add(time.Hour))

	l.sweep()

	l.mu.Lock()
	_, hasExpired := l.entries["expired"]
	_, hasLive := l.entries["live"]
	l.mu.Unlock()

	if hasExpired {
		t.Error("expired entry survived sweep")
	}
	if !hasLive {
		t.Error("live entry dropped by sweep")
	}
}

func TestRevocationList_CloseIdempotent(t *testing.T) {
	l := NewRevocationList()
	l.Close()
	l.Close()
}

func TestRevocationList_CloseConcurrent(t *testing.T) {
	l := NewRevocationList()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Close()
		}()
	}
	wg.Wait()
}
