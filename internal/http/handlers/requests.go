package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-silk/internal/silk"
)

const defaultListLimit = 100

type Requests struct {
	rec *silk.Recorder
	log *slog.Logger
}

func NewRequests(rec *silk.Recorder, log *slog.Logger) *Requests {
	if log == nil {
		log = slog.Default()
	}
	return &Requests{rec: rec, log: log}
}

type listRequestsQuery struct {
	Path   string `validate:"omitempty,startswith=/"`
	Method string `validate:"omitempty,alpha,max=10"`
	Limit  int    `validate:"gte=1,lte=1000"`
}

type ListRequestsResponse struct {
	Items []silk.Request `json:"items"`
}

// RequestResp is a request record with its derived fields.
type RequestResp struct {
	*silk.Request
	Headers               map[string]string `json:"headers"`
	ContentType           *string           `json:"content_type"`
	TotalMetaTime         float64           `json:"total_meta_time"`
	TimeSpentOnSQLQueries float64           `json:"time_spent_on_sql_queries"`
}

type ResponseResp struct {
	*silk.Response
	Headers     map[string]string `json:"headers"`
	ContentType *string           `json:"content_type"`
}

type QueryListResponse struct {
	Items []silk.SQLQuery `json:"items"`
}

type ProfileListResponse struct {
	Items []silk.Profile `json:"items"`
}

// List godoc
// @Summary List recorded requests
// @Tags requests
// @Produce json
// @Param path query string false "Exact path"
// @Param method query string false "HTTP method"
// @Param limit query int false "Max items (1..1000)"
// @Success 200 {object} ListRequestsResponse
// @Failure 400 {object} ErrorEnvelope
// @Router /v1/requests [get]
func (h *Requests) List() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := listRequestsQuery{
			Path:   r.URL.Query().Get("path"),
			Method: strings.ToUpper(r.URL.Query().Get("method")),
			Limit:  defaultListLimit,
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "limit must be an integer")
				return
			}
			q.Limit = n
		}
		if err := validate.Struct(q); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ValidationError(err))
			return
		}

		items, err := h.rec.Store().ListRequests(r.Context(), silk.RequestFilter{
			Path:   q.Path,
			Method: q.Method,
			Limit:  q.Limit,
		})
		if err != nil {
			writeStoreError(w, h.log, err, "requests")
			return
		}
		if items == nil {
			items = []silk.Request{}
		}
		writeJSON(w, http.StatusOK, ListRequestsResponse{Items: items})
	})
}

// Get godoc
// @Summary Get a recorded request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} RequestResp
// @Failure 404 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/requests/{id} [get]
func (h *Requests) Get() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		req, err := h.rec.Store().GetRequest(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		headers, err := req.Headers()
		if err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		spent, err := h.rec.RequestTimeOnQueries(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		writeJSON(w, http.StatusOK, RequestResp{
			Request:               req,
			Headers:               headers.Map(),
			ContentType:           contentType(headers),
			TotalMetaTime:         req.TotalMetaTime(),
			TimeSpentOnSQLQueries: spent,
		})
	})
}

// Delete godoc
// @Summary Delete a request with everything recorded under it
// @Tags requests
// @Param id path string true "Request ID"
// @Success 204
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/requests/{id} [delete]
func (h *Requests) Delete() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.rec.DeleteRequest(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// Response godoc
// @Summary Get the response recorded for a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} ResponseResp
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/requests/{id}/response [get]
func (h *Requests) Response() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.rec.Store().GetResponseByRequest(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, h.log, err, "response")
			return
		}
		headers, err := resp.Headers()
		if err != nil {
			writeStoreError(w, h.log, err, "response")
			return
		}
		writeJSON(w, http.StatusOK, ResponseResp{
			Response:    resp,
			Headers:     headers.Map(),
			ContentType: contentType(headers),
		})
	})
}

// Queries godoc
// @Summary List SQL queries of a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} QueryListResponse
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/requests/{id}/queries [get]
func (h *Requests) Queries() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		store := h.rec.Store()
		if _, err := store.GetRequest(r.Context(), id); err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		items, err := store.ListSQLQueriesByRequest(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "queries")
			return
		}
		if items == nil {
			items = []silk.SQLQuery{}
		}
		writeJSON(w, http.StatusOK, QueryListResponse{Items: items})
	})
}

// Profiles godoc
// @Summary List profiles of a request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} ProfileListResponse
// @Failure 404 {object} ErrorEnvelope
// @Router /v1/requests/{id}/profiles [get]
func (h *Requests) Profiles() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		store := h.rec.Store()
		if _, err := store.GetRequest(r.Context(), id); err != nil {
			writeStoreError(w, h.log, err, "request")
			return
		}
		items, err := store.ListProfilesByRequest(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.log, err, "profiles")
			return
		}
		if items == nil {
			items = []silk.Profile{}
		}
		writeJSON(w, http.StatusOK, ProfileListResponse{Items: items})
	})
}

func contentType(h silk.Headers) *string {
	if ct, ok := h.ContentType(); ok {
		return &ct
	}
	return nil
}
