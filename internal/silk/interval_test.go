package silk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedMs(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(1500*time.Millisecond + 250*time.Microsecond)

	ms := ElapsedMs(start, &end)
	require.NotNil(t, ms)
	assert.InDelta(t, 1500.25, *ms, 1e-9)

	again := ElapsedMs(start, &end)
	require.NotNil(t, again)
	assert.Equal(t, *ms, *again)
}

func TestElapsedMs_ZeroDuration(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start

	ms := ElapsedMs(start, &end)
	require.NotNil(t, ms)
	assert.Equal(t, 0.0, *ms)
}

func TestElapsedMs_OpenInterval(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Nil(t, ElapsedMs(start, nil))

	end := start.Add(time.Second)
	assert.Nil(t, ElapsedMs(time.Time{}, &end))
}
