package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go-silk/internal/silk"
)

type Cleanup struct {
	rec          *silk.Recorder
	log          *slog.Logger
	maxBodyBytes int64
}

func NewCleanup(rec *silk.Recorder, log *slog.Logger, maxBodyBytes int64) *Cleanup {
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Cleanup{rec: rec, log: log, maxBodyBytes: maxBodyBytes}
}

type CleanupReq struct {
	MaxRequests int    `json:"max_requests" validate:"gte=0,required_without=OlderThan"`
	OlderThan   string `json:"older_than" validate:"required_without=MaxRequests"`
}

type CleanupResp struct {
	Deleted int `json:"deleted"`
}

// Prune godoc
// @Summary Delete old recorded requests
// @Description Keeps the newest max_requests requests and drops those older than older_than.
// @Tags maintenance
// @Accept json
// @Produce json
// @Param request body CleanupReq true "Cleanup request"
// @Success 200 {object} CleanupResp
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/cleanup [post]
func (h *Cleanup) Prune() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		dec := json.NewDecoder(io.LimitReader(r.Body, h.maxBodyBytes))
		dec.DisallowUnknownFields()

		var req CleanupReq
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ValidationError(err))
			return
		}
		opts := silk.PruneOptions{MaxRequests: req.MaxRequests}
		if req.OlderThan != "" {
			d, err := time.ParseDuration(req.OlderThan)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "bad_request", "older_than must be a positive duration")
				return
			}
			opts.OlderThan = d
		}

		n, err := h.rec.Prune(r.Context(), opts)
		if err != nil {
			h.log.Error("prune failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "cleanup failed")
			return
		}
		writeJSON(w, http.StatusOK, CleanupResp{Deleted: n})
	})
}
