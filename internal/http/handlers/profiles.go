package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-silk/internal/silk"
)

type Profiles struct {
	rec *silk.Recorder
	log *slog.Logger
}

func NewProfiles(rec *silk.Recorder, log *slog.Logger) *Profiles {
	if log == nil {
		log = slog.Default()
	}
	return &Profiles{rec: rec, log: log}
}

type ProfileResp struct {
	*silk.Profile
	IsFunctionProfile     bool        `json:"is_function_profile"`
	IsContextProfile      bool        `json:"is_context_profile"`
	TimeSpentOnSQLQueries float64     `json:"time_spent_on_sql_queries"`
	Queries               []QueryResp `json:"queries"`
}

// Get godoc
// @Summary Get a profile with its linked SQL queries
// @Tags profiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} ProfileResp
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/profiles/{id} [get]
func (h *Profiles) Get() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		store := h.rec.Store()
		p, err := store.GetProfile(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "profile")
			return
		}
		linked, err := store.ListSQLQueriesByProfile(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "profile queries")
			return
		}
		spent, err := h.rec.ProfileTimeOnQueries(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "profile")
			return
		}

		queries := make([]QueryResp, 0, len(linked))
		for i := range linked {
			queries = append(queries, newQueryResp(&linked[i]))
		}
		writeJSON(w, http.StatusOK, ProfileResp{
			Profile:               p,
			IsFunctionProfile:     p.IsFunctionProfile(),
			IsContextProfile:      p.IsContextProfile(),
			TimeSpentOnSQLQueries: spent,
			Queries:               queries,
		})
	})
}
