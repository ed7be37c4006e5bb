package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck probes a downstream dependency, returning an error when the
// process should not receive traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	startedAt time.Time
	clock     func() time.Time
	checks    map[string]ReadinessCheck
}

// HealthOption customises a HealthHandlers instance.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the time source, primarily for testing.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		if h.checks == nil {
			h.checks = make(map[string]ReadinessCheck)
		}
		h.checks[name] = check
	}
}

// NewHealthHandlers constructs health endpoints with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.clock()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered dependency probe and reports aggregate status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if len(results) > 0 {
		payload["checks"] = results
	}
	if !healthy {
		status = http.StatusServiceUnavailable
		payload["status"] = "unavailable"
	}
	writeJSONResponse(w, status, payload)
}
