package api

import (
	"net/http"
	"time"

	"github.com/proshano/kcru-mailer/internal/pkg/httputil"
)

type healthStatus struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleHealth reports overall health. The database is the only hard
// dependency; Redis degrades to advisory-lock fallback, so a Redis fault
// is "degraded" rather than "unhealthy".
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"
	code := http.StatusOK

	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(r.Context()); err != nil {
			checks["database"] = "down: " + err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.deps.Redis != nil {
		if err := h.deps.Redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = "down: " + err.Error()
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	httputil.JSON(w, code, healthStatus{
		Status: status,
		Time:   time.Now().UTC().Format(time.RFC3339),
		Checks: checks,
	})
}

// HandleLiveness always returns 200 while the process is up.
func (h *Handlers) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive"})
}

// HandleReadiness reports whether the server can take traffic.
func (h *Handlers) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(r.Context()); err != nil {
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	httputil.OK(w, map[string]string{"status": "ready"})
}
