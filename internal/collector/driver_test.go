package collector

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-silk/internal/silk"
)

// openMockDB registers a recording wrapper around a fresh sqlmock connection.
func openMockDB(t *testing.T, rec *silk.Recorder) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	dsn := uuid.NewString()
	mdb, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	name := "silk-" + uuid.NewString()
	Register(name, mdb.Driver(), rec, nil)
	db, err := sql.Open(name, dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
		_ = mdb.Close()
	})
	return db, mock
}

func TestDriverRecordsQueriesUnderRequest(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	rec := silk.NewRecorder(store, nil)
	db, mock := openMockDB(t, rec)

	req, err := rec.StartRequest(ctx, silk.RequestStart{Method: "GET", Path: "/users"})
	require.NoError(t, err)
	rctx := WithRequest(ctx, req.ID)

	mock.ExpectExec("UPDATE users SET seen = ?").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("SELECT id FROM users").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	_, err = db.ExecContext(rctx, "UPDATE users SET seen = ?", 1)
	require.NoError(t, err)
	rows, err := db.QueryContext(rctx, "SELECT id FROM users")
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Close())
	require.NoError(t, mock.ExpectationsWereMet())

	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumSQLQueries)

	queries, err := store.ListSQLQueriesByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	texts := []string{queries[0].Query, queries[1].Query}
	assert.ElementsMatch(t, []string{"UPDATE users SET seen = ?", "SELECT id FROM users"}, texts)
	for _, q := range queries {
		require.NotNil(t, q.RequestID)
		assert.Equal(t, req.ID, *q.RequestID)
		assert.NotNil(t, q.EndTime)
		assert.NotNil(t, q.TimeTaken)
		assert.Contains(t, q.Traceback, "driver_test.go")
		assert.NotContains(t, q.Traceback, "database/sql.")
	}
}

func TestDriverSkipsQueriesOutsideRequest(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	db, mock := openMockDB(t, silk.NewRecorder(store, nil))

	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := db.ExecContext(ctx, "DELETE FROM sessions")
	require.NoError(t, err)

	reqs, err := store.ListRequests(ctx, silk.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestDriverTalliesInternalQueries(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	rec := silk.NewRecorder(store, nil)
	db, mock := openMockDB(t, rec)

	req, err := rec.StartRequest(ctx, silk.RequestStart{Method: "GET", Path: "/"})
	require.NoError(t, err)

	stats := &metaStats{}
	ictx := internal(WithRequest(withMeta(ctx, stats), req.ID))
	mock.ExpectExec("INSERT INTO silk_request DEFAULT VALUES").WillReturnResult(sqlmock.NewResult(1, 1))
	_, err = db.ExecContext(ictx, "INSERT INTO silk_request DEFAULT VALUES")
	require.NoError(t, err)

	n, _ := stats.snapshot()
	assert.Equal(t, 1, n)
	got, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumSQLQueries)
}

func TestDriverLinksActiveProfiles(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	rec := silk.NewRecorder(store, nil)
	db, mock := openMockDB(t, rec)

	req, err := rec.StartRequest(ctx, silk.RequestStart{Method: "GET", Path: "/report"})
	require.NoError(t, err)

	pctx, span := StartProfile(WithRequest(ctx, req.ID), rec, "build report")
	require.NotNil(t, span)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	var n int
	require.NoError(t, db.QueryRowContext(pctx, "SELECT 1").Scan(&n))
	span.End(nil)

	linked, err := store.ListSQLQueriesByProfile(ctx, span.ID())
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "SELECT 1", linked[0].Query)
}

func TestRegisterPanics(t *testing.T) {
	rec := silk.NewRecorder(silk.NewMemoryStore(), nil)
	assert.Panics(t, func() { Register("silk-nil-driver", nil, rec, nil) })

	mdb, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mdb.Close()
	name := "silk-" + uuid.NewString()
	Register(name, mdb.Driver(), rec, nil)
	assert.Panics(t, func() { Register(name, mdb.Driver(), rec, nil) })
}
