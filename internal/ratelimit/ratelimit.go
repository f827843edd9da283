// Package ratelimit provides a per-client token bucket limiter for HTTP
// handlers.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows up to perMinute requests per client per minute, with a
// burst of the same size. Idle clients are forgotten after idleTTL.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time

	// OnLimit is called for rejected requests. It defaults to a plain 429.
	OnLimit http.HandlerFunc
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter for perMinute requests per minute. A non-positive
// perMinute disables limiting.
func New(perMinute int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Inf,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep drops clients not seen for longer than the idle TTL.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
		}
	}
}

// Run sweeps idle clients every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
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

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware rejects requests from clients over their budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			if l.OnLimit != nil {
				l.OnLimit(w, r)
				return
			}
			http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// handled upstream when proxy trust is enabled.
func ClientIP(r *http.Request) string {
	for i := len(r.RemoteAddr) - 1; i >= 0; i-- {
		if r.RemoteAddr[i] == ':' {
			return r.RemoteAddr[:i]
		}
	}
	return r.RemoteAddr
}
