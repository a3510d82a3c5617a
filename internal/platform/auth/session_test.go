package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSessionTracker_IdleTimeout(t *testing.T) {
	base := time.Now()
	clock := base
	s := NewSessionTracker(30 * time.Minute)
	s.now = func() time.Time { return clock }

	id := uuid.New()
	s.Begin(id)

	clock = base.Add(29 * time.Minute)
	if !s.Touch(id) {
		t.Fatal("session expired before idle timeout")
	}

	// Touch refreshed last-activity, so another 29 minutes is still fine.
	clock = clock.Add(29 * time.Minute)
	if !s.Touch(id) {
		t.Fatal("refreshed session expired early")
	}

	clock = clock.Add(31 * time.Minute)
	if s.Touch(id) {
		t.Fatal("idle session not expired")
	}

	// An expired session is gone; it does not silently restart.
	clock = clock.Add(time.Second)
	if s.Touch(id) {
		t.Fatal("expired session restarted on touch")
	}
}

func TestSessionTracker_UnknownAndEnded(t *testing.T) {
	s := NewSessionTracker(30 * time.Minute)
	id := uuid.New()

	if s.Touch(id) {
		t.Error("touch succeeded without Begin")
	}

	s.Begin(id)
	s.End(id)
	if s.Touch(id) {
		t.Error("touch succeeded after End")
	}
}

func TestLoginThrottle_LockAfterThreshold(t *testing.T) {
	base := time.Now()
	clock := base
	th := NewLoginThrottle(5, 15*time.Minute, 30*time.Minute)
	th.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		if until := th.RecordAttempt("nurse.kim", false); until != nil {
			t.Fatalf("locked after %d failures", i+1)
		}
		if ok, _ := th.Check("nurse.kim"); !ok {
			t.Fatalf("blocked after %d failures", i+1)
		}
	}

	until := th.RecordAttempt("nurse.kim", false)
	if until == nil {
		t.Fatal("fifth failure did not lock")
	}
	if want := clock.Add(30 * time.Minute); !until.Equal(want) {
		t.Errorf("lockedUntil = %v, want %v", until, want)
	}

	ok, retryAfter := th.Check("nurse.kim")
	if ok {
		t.Fatal("locked account allowed")
	}
	if retryAfter <= 0 || retryAfter > 30*time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 30m]", retryAfter)
	}

	// Lock clears once the duration elapses.
	clock = base.Add(31 * time.Minute)
	if ok, _ := th.Check("nurse.kim"); !ok {
		t.Error("account still locked after lock duration")
	}
}

func TestLoginThrottle_SuccessResets(t *testing.T) {
	th := NewLoginThrottle(5, 15*time.Minute, 30*time.Minute)

	for i := 0; i < 4; i++ {
		th.RecordAttempt("dr.adams", false)
	}
	th.RecordAttempt("dr.adams", true)

	if got := th.Failures("dr.adams"); got != 0 {
		t.Errorf("failures after success = %d, want 0", got)
	}

	// Counter genuinely restarted: four more failures do not lock.
	for i := 0; i < 4; i++ {
		if until := th.RecordAttempt("dr.adams", false); until != nil {
			t.Fatal("locked before threshold after reset")
		}
	}
}

func TestLoginThrottle_WindowExpiry(t *testing.T) {
	base := time.Now()
	clock := base
	th := NewLoginThrottle(5, 15*time.Minute, 30*time.Minute)
	th.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		th.RecordAttempt("billing.lee", false)
	}

	// Failures outside the window start a fresh count.
	clock = base.Add(16 * time.Minute)
	if until := th.RecordAttempt("billing.lee", false); until != nil {
		t.Fatal("stale failures counted toward lockout")
	}
	if got := th.Failures("billing.lee"); got != 1 {
		t.Errorf("failures = %d, want 1", got)
	}
}

func TestLoginThrottle_PerUsername(t *testing.T) {
	th := NewLoginThrottle(5, 15*time.Minute, 30*time.Minute)

	for i := 0; i < 5; i++ {
		th.RecordAttempt("locked.user", false)
	}

	if ok, _ := th.Check("locked.user"); ok {
		t.Error("expected locked.user to be locked")
	}
	if ok, _ := th.Check("other.user"); !ok {
		t.Error("unrelated username affected by lockout")
	}
}
