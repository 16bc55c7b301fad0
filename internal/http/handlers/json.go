package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-silk/internal/silk"
)

type ErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	var env ErrorEnvelope
	env.Error.Code = errCode
	env.Error.Message = msg
	_ = json.NewEncoder(w).Encode(env)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreError maps record store errors onto the error envelope.
func writeStoreError(w http.ResponseWriter, log *slog.Logger, err error, what string) {
	switch {
	case errors.Is(err, silk.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", what+" not found")
	case errors.Is(err, silk.ErrMalformedHeaders):
		log.Error("corrupt record", "err", err, "what", what)
		writeError(w, http.StatusInternalServerError, "corrupt_record", what+" has malformed headers")
	default:
		log.Error("store failed", "err", err, "what", what)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load "+what)
	}
}
