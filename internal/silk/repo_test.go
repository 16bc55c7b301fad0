package silk

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"go-silk/internal/config"
	"go-silk/internal/db"
)

// openTestRepository migrates a private in-memory SQLite database.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	g, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := g.DB()
	require.NoError(t, err)
	// one connection serializes transactions and keeps the memory database alive
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(g)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestRecorderGormRepository(t *testing.T) {
	suite.Run(t, &recorderCases{newStore: func(t *testing.T) Store { return openTestRepository(t) }})
}

func TestRepository_Migrate(t *testing.T) {
	repo := openTestRepository(t)
	m := repo.db.Migrator()
	for _, table := range []string{"silk_request", "silk_response", "silk_sql_query", "silk_profile", "silk_profile_query"} {
		assert.True(t, m.HasTable(table), table)
	}
}

func TestRepository_AdjustQueryCountMissingRequest(t *testing.T) {
	repo := openTestRepository(t)
	err := repo.AdjustQueryCount(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_AtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)
	req := &Request{Method: "GET", Path: "/x"}
	require.NoError(t, repo.CreateRequest(ctx, req))

	err := repo.Atomic(ctx, func(tx Tx) error {
		if err := tx.AdjustQueryCount(ctx, req.ID, 5); err != nil {
			return err
		}
		return errInjected
	})
	require.ErrorIs(t, err, errInjected)

	got, err := repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumSQLQueries)
}

// openFileRepository migrates a SQLite file through the pooled connection setup the binaries use.
func openFileRepository(t *testing.T) *Repository {
	t.Helper()
	cfg := config.Config{
		DatabaseURL: "sqlite:" + filepath.Join(t.TempDir(), "silk.db"),
		LogLevel:    "error",
	}
	dbx, err := db.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	require.Greater(t, dbx.SQL.Stats().MaxOpenConnections, 1)

	repo := NewRepository(dbx.Gorm)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestRepository_FileDatabaseConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	repo := openFileRepository(t)
	rec := NewRecorder(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req, err := rec.StartRequest(ctx, RequestStart{Method: "GET", Path: "/busy"})
	require.NoError(t, err)

	const n = 40
	run := func(fn func(i int) error) {
		t.Helper()
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := fn(i); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	}

	ids := make([]string, n)
	run(func(i int) error {
		q, err := rec.RecordQuery(ctx, QueryInput{Query: "SELECT 1", RequestID: &req.ID})
		if err != nil {
			return err
		}
		ids[i] = q.ID
		return nil
	})
	got, err := repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.NumSQLQueries)

	run(func(i int) error { return rec.DeleteQuery(ctx, ids[i]) })
	got, err = repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumSQLQueries)

	status := 200
	run(func(i int) error {
		r, err := rec.StartRequest(ctx, RequestStart{Method: "POST", Path: "/lifecycle"})
		if err != nil {
			return err
		}
		if _, err := rec.RecordQuery(ctx, QueryInput{Query: "UPDATE t SET x = 1", RequestID: &r.ID}); err != nil {
			return err
		}
		if _, err := rec.SaveResponse(ctx, ResponseInput{RequestID: r.ID, StatusCode: &status}); err != nil {
			return err
		}
		_, err = rec.CompleteRequest(ctx, r.ID, RequestEnd{StatusCode: &status, EndTime: time.Now()})
		return err
	})
	count, err := repo.CountRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), count)
}

func TestModel_UnboundedTextColumns(t *testing.T) {
	cache := &sync.Map{}
	cases := []struct {
		model  any
		fields []string
	}{
		{&Request{}, []string{"path", "view_name"}},
		{&Profile{}, []string{"name", "file_path", "func_name"}},
	}
	for _, c := range cases {
		s, err := schema.Parse(c.model, cache, schema.NamingStrategy{})
		require.NoError(t, err)
		for _, name := range c.fields {
			f := s.LookUpField(name)
			require.NotNil(t, f, name)
			assert.Equal(t, schema.DataType("text"), f.DataType, name)
		}
	}
}

func TestRepository_LongValuesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepository(t)
	rec := NewRecorder(repo, nil)
	long := "/" + strings.Repeat("segment/", 125)

	req, err := rec.StartRequest(ctx, RequestStart{Method: "GET", Path: long, ViewName: long})
	require.NoError(t, err)
	funcName := strings.Repeat("pkg.(*Type).method.", 20)
	p, err := rec.StartProfile(ctx, ProfileStart{
		Name:      strings.Repeat("n", 400),
		RequestID: &req.ID,
		FilePath:  strings.Repeat("dir/", 100) + "file.go",
		FuncName:  &funcName,
	})
	require.NoError(t, err)

	got, err := repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, long, got.Path)
	assert.Equal(t, long, got.ViewName)

	gp, err := repo.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, gp.Name, 400)
	require.NotNil(t, gp.FuncName)
	assert.Equal(t, funcName, *gp.FuncName)
}
