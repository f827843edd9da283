package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health is the /health response body.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
}

// Check probes one dependency. Slow is the latency above which a passing
// check is reported as degraded; zero means one second.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
	Slow time.Duration
}

const checkTimeout = 5 * time.Second

// HandleHealth reports every component. Any component down makes the
// response 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleReady is the readiness probe: all checks must pass.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())
	if health.Status == HealthStatusUnhealthy {
		for name, c := range health.Components {
			if c.Status == ComponentStatusDown {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":  "not_ready",
					"message": name + " unavailable",
				})
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now(),
		Version:    s.version,
		Components: make(map[string]ComponentHealth, len(s.checks)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range s.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			ch := runCheck(ctx, c)
			mu.Lock()
			health.Components[c.Name] = ch
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	health.Status = determineOverallHealth(health.Components)
	return health
}

func runCheck(ctx context.Context, c Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Fn(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: c.Name + " check failed: " + err.Error(),
		}
	}

	slow := c.Slow
	if slow == 0 {
		slow = time.Second
	}
	ch := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   c.Name + " healthy",
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if latency > slow {
		ch.Status = ComponentStatusDegraded
		ch.Message = c.Name + " latency high"
	}
	return ch
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var (
		downCount     int
		degradedCount int
	)

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
