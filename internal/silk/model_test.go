package silk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRequest_TouchRecomputesTimeTaken(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Millisecond)
	r := &Request{StartTime: start, EndTime: &end}

	r.touch()
	require.NotNil(t, r.TimeTaken)
	assert.InDelta(t, 20.0, *r.TimeTaken, 1e-9)

	later := start.Add(35 * time.Millisecond)
	r.EndTime = &later
	r.touch()
	assert.InDelta(t, 35.0, *r.TimeTaken, 1e-9)

	r.EndTime = nil
	r.touch()
	assert.Nil(t, r.TimeTaken)
}

func TestRequest_TotalMetaTime(t *testing.T) {
	r := &Request{}
	assert.Equal(t, 0.0, r.TotalMetaTime())

	r.MetaTime = ptr(2.5)
	assert.Equal(t, 2.5, r.TotalMetaTime())

	r.MetaTimeSpentQueries = ptr(1.25)
	assert.Equal(t, 3.75, r.TotalMetaTime())
}

func TestRequest_Headers(t *testing.T) {
	r := &Request{EncodedHeaders: `{"Content-Type":"text/html"}`}
	ct, ok, err := r.ContentType()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "text/html", ct)

	r.EncodedHeaders = ""
	_, ok, err = r.ContentType()
	require.NoError(t, err)
	assert.False(t, ok)

	r.EncodedHeaders = "{broken"
	_, err = r.Headers()
	assert.ErrorIs(t, err, ErrMalformedHeaders)
}

func TestSQLQuery_TracebackLinesOnly(t *testing.T) {
	q := &SQLQuery{Traceback: "File \"a.go\", line 1, in main\n    main()\nFile \"b.go\", line 9, in run\n    run()"}
	assert.Equal(t, "File \"a.go\", line 1, in main\nFile \"b.go\", line 9, in run", q.TracebackLinesOnly())

	q.Traceback = "only one line"
	assert.Equal(t, "only one line", q.TracebackLinesOnly())

	q.Traceback = ""
	assert.Equal(t, "", q.TracebackLinesOnly())
}

func TestSQLQuery_Heuristics(t *testing.T) {
	q := &SQLQuery{Query: "SELECT * FROM a JOIN b JOIN c"}
	assert.Equal(t, 2, q.NumJoins())
	assert.Equal(t, []string{"a", "b", "c"}, q.TablesInvolved())
	assert.Equal(t, "SELECT *\nFROM a\nJOIN b\nJOIN c", q.FormattedQuery())
}

func TestProfile_Classification(t *testing.T) {
	p := &Profile{Name: "block"}
	assert.True(t, p.IsContextProfile())
	assert.False(t, p.IsFunctionProfile())

	p.FuncName = ptr("handler")
	assert.True(t, p.IsFunctionProfile())
	assert.False(t, p.IsContextProfile())
}
