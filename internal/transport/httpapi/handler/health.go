package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthHandler handles liveness and readiness endpoints
type HealthHandler struct {
	checks map[string]CheckFunc
	log    *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]CheckFunc, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		log:    log.WithComponent("health"),
	}
}

// Live handles GET /health. It reports that the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. It probes every dependency and reports
// 503 when any is down.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.WithError(err).Warn("readiness check failed", "dependency", name)
			results[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}

	respondJSON(w, status, map[string]any{
		"status":       statusWord(status),
		"dependencies": results,
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
