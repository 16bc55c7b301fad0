package http

import (
	"expvar"
	"log/slog"
	nhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go-silk/internal/config"
	"go-silk/internal/http/handlers"
	"go-silk/internal/silk"
)

// NewRouter serves the read API over the records kept by rec.
// db, when set, backs the readiness probe.
func NewRouter(cfg config.Config, log *slog.Logger, rec *silk.Recorder, db handlers.Pinger) nhttp.Handler {
	r := chi.NewRouter()

	// order matters; first is outermost
	r.Use(withRequestID)
	r.Use(func(h nhttp.Handler) nhttp.Handler { return withRecover(log, h) })
	r.Use(func(h nhttp.Handler) nhttp.Handler { return withLogging(log, h) })
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// Liveness and readiness
	r.Get("/healthz", handlers.Healthz)
	r.Get("/readyz", handlers.Readyz(db))

	// expvar
	r.Method(nhttp.MethodGet, "/debug/vars", expvar.Handler())

	if rec == nil {
		return r
	}
	r.Route("/v1", func(r chi.Router) {
		handlers.Mount(r, rec, log, cfg.MaxBodyBytes)
	})
	return r
}
