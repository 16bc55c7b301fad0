package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestCounters(t *testing.T) {
	before := RecordedQueries.Value()
	IncRecordedQueries()
	IncRecordedQueries()
	assert.Equal(t, before+2, RecordedQueries.Value())

	before = RecorderErrorsTotal.Value()
	IncRecorderErrors()
	assert.Equal(t, before+1, RecorderErrorsTotal.Value())
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "production").Info("hello", "n", 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "silk", rec["service"])

	buf.Reset()
	log := newLogger(&buf, "warn", "development")
	log.Info("dropped")
	assert.Empty(t, buf.String())
	log.Warn("kept")
	assert.True(t, strings.Contains(buf.String(), "msg=kept"))
	assert.Contains(t, buf.String(), "service=silk")
}
