package ratelimit

import (
	"testing"
	"time"
)

func newTestLockout() (*Lockout, *time.Time) {
	l := NewLockout(3, 15*time.Minute, 10*time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLockout_LocksAfterMaxAttempts(t *testing.T) {
	l, now := newTestLockout()

	for i := 1; i < 3; i++ {
		if locked, _ := l.Fail("alice"); locked {
			t.Fatalf("attempt %d should not lock", i)
		}
	}
	locked, until := l.Fail("Alice ")
	if !locked {
		t.Fatal("third failure should lock the account")
	}
	if want := now.Add(15 * time.Minute); !until.Equal(want) {
		t.Errorf("locked until %v, want %v", until, want)
	}
	if ok, _ := l.Locked("ALICE"); !ok {
		t.Error("usernames should be matched case-insensitively")
	}
	if ok, _ := l.Locked("bob"); ok {
		t.Error("other accounts must not be locked")
	}

	*now = now.Add(16 * time.Minute)
	if ok, _ := l.Locked("alice"); ok {
		t.Error("lock should expire")
	}
}

func TestLockout_WindowResetsCount(t *testing.T) {
	l, now := newTestLockout()

	l.Fail("alice")
	l.Fail("alice")
	*now = now.Add(11 * time.Minute)
	if locked, _ := l.Fail("alice"); locked {
		t.Error("failures outside the window should not count")
	}
}

func TestLockout_Reset(t *testing.T) {
	l, _ := newTestLockout()

	l.Fail("alice")
	l.Fail("alice")
	l.Reset("alice")
	if locked, _ := l.Fail("alice"); locked {
		t.Error("reset should clear previous failures")
	}
}

func TestLockout_Sweep(t *testing.T) {
	l, now := newTestLockout()

	l.Fail("alice")
	*now = now.Add(21 * time.Minute)
	l.Fail("bob")
	l.Sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.attempts["alice"]; ok {
		t.Error("stale entry should be swept")
	}
	if _, ok := l.attempts["bob"]; !ok {
		t.Error("recent entry should be kept")
	}
}
