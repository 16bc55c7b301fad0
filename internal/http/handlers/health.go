package handlers

import (
	"context"
	"net/http"
	"time"
)

// Healthz godoc
// @Summary Liveness probe
// @Tags platform
// @Success 200 {string} string "ok"
// @Router /healthz [get]
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Readyz godoc
// @Summary Readiness probe
// @Tags platform
// @Success 200 {string} string "ready"
// @Failure 503 {object} ErrorEnvelope
// @Router /readyz [get]
func Readyz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
