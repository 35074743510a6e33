package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the body served by the health endpoint.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health serves the health endpoint. Checks can be added after the server starts.
type Health struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealth() *Health {
	return &Health{checks: make(map[string]HealthCheck), timeout: 2 * time.Second}
}

// AddCheck registers a named check, replacing any check with the same name.
func (h *Health) AddCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// ServeHTTP answers 200 when every check passes and 503 otherwise.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	_ = WriteJSON(w, status, resp)
}

// MetricsHandler serves the Prometheus metrics of the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
