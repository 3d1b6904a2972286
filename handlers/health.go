package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"voyage-payment-api/utils"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks    map[string]Check
	startTime time.Time
	now       func() time.Time
}

type healthResponse struct {
	Status       string            `json:"status"`
	Time         string            `json:"time"`
	Uptime       string            `json:"uptime"`
	GoVersion    string            `json:"go_version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := h.now()
	health := healthResponse{
		Status:    "ok",
		Time:      now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	}

	if len(h.checks) > 0 {
		health.Dependencies = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		checkCtx, checkCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		err := check(checkCtx)
		checkCancel()
		if err != nil {
			health.Status = "degraded"
			health.Dependencies[name] = "error"
			continue
		}
		health.Dependencies[name] = "connected"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	utils.SendJSON(w, status, health)
}
