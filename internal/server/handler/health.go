package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds each dependency probe.
const checkTimeout = 2 * time.Second

// Check probes one backing dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks  []Check
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler that runs checks on every request.
func NewHealthHandler(logger *slog.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		started: time.Now(),
		logger:  logHandler(logger, "health"),
	}
}

// HealthCheck reports liveness and the state of every dependency. Any failed
// probe turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: dependency unhealthy",
				slog.String("dependency", c.Name),
				slog.String("error", err.Error()),
			)
			deps[c.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":         overall,
		"dependencies":   deps,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
