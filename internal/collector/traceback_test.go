package collector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceback(t *testing.T) {
	tb := Traceback(0)
	lines := strings.Split(tb, "\n")
	require.NotEmpty(t, lines)
	require.Equal(t, 0, len(lines)%2)

	last := lines[len(lines)-2]
	assert.True(t, strings.HasPrefix(last, `File "`), last)
	assert.Contains(t, last, "traceback_test.go")
	assert.Contains(t, last, "in collector.TestTraceback")
	assert.Equal(t, "    go-silk/internal/collector.TestTraceback", lines[len(lines)-1])

	for i := 1; i < len(lines); i += 2 {
		assert.True(t, strings.HasPrefix(lines[i], "    "), lines[i])
	}
	assert.NotContains(t, tb, "runtime.")
}

func TestFuncPackage(t *testing.T) {
	assert.Equal(t, "go-silk/internal/collector", funcPackage("go-silk/internal/collector.(*conn).ExecContext"))
	assert.Equal(t, "database/sql", funcPackage("database/sql.(*DB).ExecContext"))
	assert.Equal(t, "main", funcPackage("main.main"))
	assert.Equal(t, "go-silk/internal/collector", selfPackage)
}

func TestShortFunc(t *testing.T) {
	assert.Equal(t, "silk.(*Recorder).RecordQuery", shortFunc("go-silk/internal/silk.(*Recorder).RecordQuery"))
	assert.Equal(t, "main.main", shortFunc("main.main"))
}
