// Package health exposes liveness information about the daemon's
// components over HTTP.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health state of one component.
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthy creates a healthy status for a component
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status for a component
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Check produces the current status of one component. Checks run on every
// probe, so they must be cheap and must not block.
type Check func() Status

// Monitor aggregates component checks in a thread-safe manner. Probes run
// on the HTTP serving goroutine while components register from their own.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates an empty health monitor.
func NewMonitor() *Monitor {
	return &Monitor{checks: make(map[string]Check)}
}

// Register installs the check for a named component, replacing any
// previous one.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Collect runs every check and reports the statuses together with the
// overall verdict, which is healthy only when every component is.
func (m *Monitor) Collect() (map[string]Status, bool) {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mu.RUnlock()

	statuses := make(map[string]Status, len(checks))
	healthy := true
	for name, check := range checks {
		status := check()
		status.Component = name
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		statuses[name] = status
		if !status.Healthy {
			healthy = false
		}
	}
	return statuses, healthy
}

// response is the wire shape of one probe.
type response struct {
	Status     string            `json:"status"`
	Components map[string]Status `json:"components"`
}

// Handler serves the aggregated health state as JSON. An unhealthy
// component yields 503 so load balancers and process supervisors can act
// on the probe.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		statuses, healthy := m.Collect()

		resp := response{Status: "healthy", Components: statuses}
		code := http.StatusOK
		if !healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
