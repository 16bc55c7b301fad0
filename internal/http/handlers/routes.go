package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-silk/internal/silk"
)

// Mount registers the record read API on r.
func Mount(r chi.Router, rec *silk.Recorder, log *slog.Logger, maxBodyBytes int64) {
	reqs := NewRequests(rec, log)
	queries := NewQueries(rec, log)
	profiles := NewProfiles(rec, log)
	cleanup := NewCleanup(rec, log, maxBodyBytes)

	r.Method(http.MethodGet, "/requests", reqs.List())
	r.Route("/requests/{id}", func(r chi.Router) {
		r.Method(http.MethodGet, "/", reqs.Get())
		r.Method(http.MethodDelete, "/", reqs.Delete())
		r.Method(http.MethodGet, "/response", reqs.Response())
		r.Method(http.MethodGet, "/queries", reqs.Queries())
		r.Method(http.MethodGet, "/profiles", reqs.Profiles())
	})
	r.Method(http.MethodGet, "/queries/{id}", queries.Get())
	r.Method(http.MethodDelete, "/queries/{id}", queries.Delete())
	r.Method(http.MethodGet, "/profiles/{id}", profiles.Get())
	r.Method(http.MethodPost, "/cleanup", cleanup.Prune())
}
