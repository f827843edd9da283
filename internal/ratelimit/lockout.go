package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// loginAttempt tracks failed logins for one account.
type loginAttempt struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// Lockout locks an account after repeated failed logins, independent of
// the client address.
type Lockout struct {
	mu              sync.Mutex
	attempts        map[string]*loginAttempt
	maxAttempts     int
	lockoutDuration time.Duration
	window          time.Duration
	now             func() time.Time
}

// NewLockout locks an account for lockoutDuration once maxAttempts failures
// happen with no more than window between consecutive failures.
func NewLockout(maxAttempts int, lockoutDuration, window time.Duration) *Lockout {
	return &Lockout{
		attempts:        make(map[string]*loginAttempt),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		window:          window,
		now:             time.Now,
	}
}

func lockoutKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Fail records a failed login and reports whether the account is now locked.
func (l *Lockout) Fail(username string) (locked bool, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := lockoutKey(username)
	a, ok := l.attempts[key]
	if !ok {
		a = &loginAttempt{}
		l.attempts[key] = a
	}
	if now.Sub(a.lastAttempt) > l.window {
		a.count = 0
	}
	a.count++
	a.lastAttempt = now

	if a.count >= l.maxAttempts {
		a.lockedUntil = now.Add(l.lockoutDuration)
		return true, a.lockedUntil
	}
	return false, time.Time{}
}

// Locked reports whether the account is locked and until when.
func (l *Lockout) Locked(username string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[lockoutKey(username)]
	if !ok || a.lockedUntil.IsZero() || !l.now().Before(a.lockedUntil) {
		return false, time.Time{}
	}
	return true, a.lockedUntil
}

// Reset clears the account's failures after a successful login.
func (l *Lockout) Reset(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, lockoutKey(username))
}

// Sweep removes entries whose lockout has expired and whose last failure
// is older than twice the window.
func (l *Lockout) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, a := range l.attempts {
		if (a.lockedUntil.IsZero() || now.After(a.lockedUntil)) && now.Sub(a.lastAttempt) > 2*l.window {
			delete(l.attempts, k)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (l *Lockout) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
