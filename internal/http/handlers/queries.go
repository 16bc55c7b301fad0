package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-silk/internal/silk"
)

type Queries struct {
	rec *silk.Recorder
	log *slog.Logger
}

func NewQueries(rec *silk.Recorder, log *slog.Logger) *Queries {
	if log == nil {
		log = slog.Default()
	}
	return &Queries{rec: rec, log: log}
}

// QueryResp is a SQL query record with its heuristic analysis.
type QueryResp struct {
	*silk.SQLQuery
	FormattedQuery     string   `json:"formatted_query"`
	NumJoins           int      `json:"num_joins"`
	TablesInvolved     []string `json:"tables_involved"`
	TracebackLinesOnly string   `json:"traceback_ln_only"`
}

func newQueryResp(q *silk.SQLQuery) QueryResp {
	return QueryResp{
		SQLQuery:           q,
		FormattedQuery:     q.FormattedQuery(),
		NumJoins:           q.NumJoins(),
		TablesInvolved:     q.TablesInvolved(),
		TracebackLinesOnly: q.TracebackLinesOnly(),
	}
}

// Get godoc
// @Summary Get a recorded SQL query
// @Tags queries
// @Produce json
// @Param id path string true "Query ID"
// @Success 200 {object} QueryResp
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/queries/{id} [get]
func (h *Queries) Get() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := h.rec.Store().GetSQLQuery(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, h.log, err, "query")
			return
		}
		writeJSON(w, http.StatusOK, newQueryResp(q))
	})
}

// Delete godoc
// @Summary Delete a recorded SQL query
// @Description Decrements the owning request's query counter in the same unit of work.
// @Tags queries
// @Param id path string true "Query ID"
// @Success 204
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/queries/{id} [delete]
func (h *Queries) Delete() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.rec.DeleteQuery(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, h.log, err, "query")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
