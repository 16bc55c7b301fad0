package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRequestID(t *testing.T) {
	assert.True(t, validRequestID("abc-123"))
	assert.False(t, validRequestID(""))
	assert.False(t, validRequestID("has space"))
	assert.False(t, validRequestID("line\nbreak"))
	assert.False(t, validRequestID(strings.Repeat("a", maxRequestIDLen+1)))
}

func TestWithRequestIDReplacesInvalid(t *testing.T) {
	var seen string
	h := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = getRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "bad id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	assert.NotEqual(t, "bad id", seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
}

func TestWithRecover(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	h := withRecover(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":"internal_error","message":"internal server error"}}`, w.Body.String())
}

func TestWithLoggingLevels(t *testing.T) {
	var out strings.Builder
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ok := withLogging(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fine"))
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Empty(t, out.String())

	missing := withLogging(log, http.NotFoundHandler())
	missing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Contains(t, out.String(), "level=WARN")
	assert.Contains(t, out.String(), "status=404")
}
