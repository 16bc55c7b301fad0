package collector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-silk/internal/silk"
)

func TestStartProfileOutsideRequest(t *testing.T) {
	rec := silk.NewRecorder(silk.NewMemoryStore(), nil)
	ctx := context.Background()

	pctx, span := StartProfile(ctx, rec, "noop")
	assert.Nil(t, span)
	assert.Equal(t, ctx, pctx)
	assert.Equal(t, "", span.ID())
	span.End(errors.New("ignored"))
}

func TestStartProfileRecordsContextProfile(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	rec := silk.NewRecorder(store, nil)
	req, err := rec.StartRequest(ctx, silk.RequestStart{Method: "GET", Path: "/"})
	require.NoError(t, err)

	pctx, outer := StartProfile(WithRequest(ctx, req.ID), rec, "outer")
	require.NotNil(t, outer)
	_, inner := StartProfile(pctx, rec, "inner")
	require.NotNil(t, inner)
	assert.Equal(t, []string{outer.ID()}, ActiveProfiles(pctx))

	inner.End(errors.New("boom"))
	outer.End(nil)

	p, err := store.GetProfile(ctx, outer.ID())
	require.NoError(t, err)
	assert.Equal(t, "outer", p.Name)
	assert.True(t, p.IsContextProfile())
	assert.False(t, p.IsFunctionProfile())
	assert.False(t, p.ExceptionRaised)
	assert.True(t, strings.HasSuffix(p.FilePath, "profile_test.go"))
	require.NotNil(t, p.LineNum)
	assert.Positive(t, *p.LineNum)
	require.NotNil(t, p.EndTime)
	require.NotNil(t, p.TimeTaken)

	p, err = store.GetProfile(ctx, inner.ID())
	require.NoError(t, err)
	assert.True(t, p.ExceptionRaised)

	profiles, err := store.ListProfilesByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestProfileFunc(t *testing.T) {
	ctx := context.Background()
	store := silk.NewMemoryStore()
	rec := silk.NewRecorder(store, nil)
	req, err := rec.StartRequest(ctx, silk.RequestStart{Method: "GET", Path: "/"})
	require.NoError(t, err)
	rctx := WithRequest(ctx, req.ID)

	errFailed := errors.New("failed")
	var seen []string
	err = ProfileFunc(rctx, rec, "load", func(ctx context.Context) error {
		seen = ActiveProfiles(ctx)
		return errFailed
	})
	require.ErrorIs(t, err, errFailed)
	require.Len(t, seen, 1)

	p, err := store.GetProfile(ctx, seen[0])
	require.NoError(t, err)
	assert.True(t, p.IsFunctionProfile())
	assert.True(t, p.ExceptionRaised)
	require.NotNil(t, p.FuncName)
	assert.Contains(t, *p.FuncName, "TestProfileFunc")
	assert.True(t, strings.HasSuffix(p.FilePath, "profile_test.go"))
}

func TestProfileFuncWithoutRequest(t *testing.T) {
	rec := silk.NewRecorder(silk.NewMemoryStore(), nil)
	called := false
	err := ProfileFunc(context.Background(), rec, "plain", func(ctx context.Context) error {
		called = true
		assert.Empty(t, ActiveProfiles(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStartProfileLogsThroughRecorderLogger(t *testing.T) {
	var out bytes.Buffer
	rec := silk.NewRecorder(silk.NewMemoryStore(), slog.New(slog.NewTextHandler(&out, nil)))

	pctx, span := StartProfile(WithRequest(context.Background(), "missing"), rec, "orphan")
	assert.Nil(t, span)
	assert.Empty(t, ActiveProfiles(pctx))
	assert.Contains(t, out.String(), "start profile failed")
	assert.Contains(t, out.String(), "request_id=missing")
}
