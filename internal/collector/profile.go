package collector

import (
	"context"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

// Span is an open profile. A nil or unrecorded Span is a no-op.
type Span struct {
	rec *silk.Recorder
	log *slog.Logger
	ctx context.Context
	id  string
}

func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// End completes the profile; a non-nil err marks it as having raised.
func (s *Span) End(err error) {
	if s == nil || s.id == "" {
		return
	}
	_, cerr := s.rec.CompleteProfile(s.ctx, s.id, silk.ProfileEnd{
		EndTime:         time.Now(),
		ExceptionRaised: err != nil,
	})
	if cerr != nil {
		observability.IncRecorderErrors()
		s.log.Warn("complete profile failed", "err", cerr, "profile_id", s.id)
	}
}

// StartProfile opens a context profile named name under the request recorded in ctx.
// Queries run with the returned context are attributed to the profile.
// Outside a recorded request nothing is stored and ctx is returned unchanged.
func StartProfile(ctx context.Context, rec *silk.Recorder, name string) (context.Context, *Span) {
	_, file, line, _ := runtime.Caller(1)
	return start(ctx, rec, silk.ProfileStart{Name: name, FilePath: file, LineNum: &line})
}

// ProfileFunc runs fn as a function profile named name.
func ProfileFunc(ctx context.Context, rec *silk.Recorder, name string, fn func(ctx context.Context) error) error {
	in := silk.ProfileStart{Name: name}
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		fnName := f.Name()
		file, line := f.FileLine(f.Entry())
		in.FuncName = &fnName
		in.FilePath = file
		in.LineNum = &line
	}
	pctx, span := start(ctx, rec, in)
	err := fn(pctx)
	span.End(err)
	return err
}

func start(ctx context.Context, rec *silk.Recorder, in silk.ProfileStart) (context.Context, *Span) {
	reqID, ok := RequestID(ctx)
	if !ok || rec == nil {
		return ctx, nil
	}
	in.RequestID = &reqID
	in.StartTime = time.Now()

	log := rec.Logger()
	ictx := internal(ctx)
	p, err := rec.StartProfile(ictx, in)
	if err != nil {
		observability.IncRecorderErrors()
		log.Warn("start profile failed", "err", err, "request_id", reqID)
		return ctx, nil
	}
	observability.IncRecordedProfiles()
	return withProfile(ctx, p.ID), &Span{rec: rec, log: log, ctx: ictx, id: p.ID}
}
