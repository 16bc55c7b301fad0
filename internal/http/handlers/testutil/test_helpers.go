package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-silk/internal/config"
	"go-silk/internal/db"
	"go-silk/internal/silk"
)

// TestEnv holds a recorder over a fresh, migrated database.
type TestEnv struct {
	Config   config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Repo     *silk.Repository
	Recorder *silk.Recorder
}

// Seeded describes the records created by Seed.
type Seeded struct {
	Request  *silk.Request
	Response *silk.Response
	Queries  []*silk.SQLQuery
	Profile  *silk.Profile
}

// SetupRecorder opens a private in-memory SQLite database, or TEST_DATABASE_URL when set,
// and returns a recorder over it. The database is closed when the test ends.
func SetupRecorder(t *testing.T) *TestEnv {
	t.Helper()
	cfg := config.Config{
		Port:           "8080",
		LogLevel:       "error",
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1024 * 1024, // 1MB
		AllowedOrigins: []string{"*"},
		Env:            "test",
		DatabaseURL:    getTestDatabaseURL(),
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	dbx, err := db.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })

	repo := silk.NewRepository(dbx.Gorm)
	require.NoError(t, repo.Migrate(context.Background()))

	return &TestEnv{
		Config:   cfg,
		DB:       dbx,
		Logger:   logger,
		Repo:     repo,
		Recorder: silk.NewRecorder(repo, logger),
	}
}

func getTestDatabaseURL() string {
	if dbURL := os.Getenv("TEST_DATABASE_URL"); dbURL != "" {
		return dbURL
	}
	return "sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

// Seed records a finished GET request at path with a JSON response, two SQL queries
// and a context profile linked to the second query.
func Seed(t *testing.T, env *TestEnv, path string, start time.Time) Seeded {
	t.Helper()
	ctx := context.Background()
	rec := env.Recorder

	req, err := rec.StartRequest(ctx, silk.RequestStart{
		Method:      "GET",
		Path:        path,
		QueryParams: "page=1",
		Headers:     map[string]string{"Content-Type": "application/json", "Accept": "*/*"},
		StartTime:   start,
	})
	require.NoError(t, err)

	prof, err := rec.StartProfile(ctx, silk.ProfileStart{
		Name:      "load orders",
		RequestID: &req.ID,
		FilePath:  "orders.go",
		StartTime: start,
	})
	require.NoError(t, err)

	var queries []*silk.SQLQuery
	for i, sql := range []string{
		"SELECT * FROM users WHERE id = 1",
		"SELECT o.id FROM orders o JOIN users u ON u.id = o.user_id",
	} {
		qs := start.Add(time.Duration(i*10) * time.Millisecond)
		qe := qs.Add(5 * time.Millisecond)
		in := silk.QueryInput{
			Query:     sql,
			StartTime: qs,
			EndTime:   &qe,
			RequestID: &req.ID,
			Traceback: "File \"orders.go\", line 10, in main.load\n    main.load",
		}
		if i == 1 {
			in.ProfileIDs = []string{prof.ID}
		}
		q, err := rec.RecordQuery(ctx, in)
		require.NoError(t, err)
		queries = append(queries, q)
	}

	_, err = rec.CompleteProfile(ctx, prof.ID, silk.ProfileEnd{EndTime: start.Add(20 * time.Millisecond)})
	require.NoError(t, err)
	prof, err = env.Repo.GetProfile(ctx, prof.ID)
	require.NoError(t, err)

	status := 200
	raw := `{"ok":true}`
	resp, err := rec.SaveResponse(ctx, silk.ResponseInput{
		RequestID:  req.ID,
		StatusCode: &status,
		RawBody:    &raw,
		Body:       &raw,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
	require.NoError(t, err)

	req, err = rec.CompleteRequest(ctx, req.ID, silk.RequestEnd{
		StatusCode: &status,
		EndTime:    start.Add(50 * time.Millisecond),
	})
	require.NoError(t, err)

	return Seeded{Request: req, Response: resp, Queries: queries, Profile: prof}
}
