package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go-silk/internal/config"
	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

// Options controls which requests the middleware records.
type Options struct {
	// InterceptPercent is the share of requests recorded, 0..100.
	InterceptPercent float64
	// IgnorePaths match exactly, or by prefix when the entry ends in "/".
	IgnorePaths     []string
	MaxRequestBody  int64
	MaxResponseBody int64
	// Meta stores the collector's own overhead on each request.
	Meta bool
	// Rand returns a value in [0, 1); defaults to math/rand.
	Rand func() float64
}

func OptionsFrom(cfg config.Silk) Options {
	return Options{
		InterceptPercent: cfg.InterceptPercent,
		IgnorePaths:      cfg.IgnorePaths,
		MaxRequestBody:   cfg.MaxRequestBodyBytes,
		MaxResponseBody:  cfg.MaxResponseBodyBytes,
		Meta:             cfg.Meta,
	}
}

func (o Options) intercept(r *http.Request) bool {
	for _, p := range o.IgnorePaths {
		if r.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(r.URL.Path, p)) {
			return false
		}
	}
	if o.InterceptPercent >= 100 {
		return true
	}
	if o.InterceptPercent <= 0 {
		return false
	}
	rnd := o.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return rnd()*100 < o.InterceptPercent
}

// Middleware records every intercepted request with its response into rec.
// Recording failures are logged and never change what the client sees.
func Middleware(rec *silk.Recorder, opts Options, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = rec.Logger()
	}
	if opts.MaxRequestBody <= 0 {
		opts.MaxRequestBody = 64 << 10
	}
	if opts.MaxResponseBody <= 0 {
		opts.MaxResponseBody = 64 << 10
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.intercept(r) {
				next.ServeHTTP(w, r)
				return
			}

			metaStart := time.Now()
			stats := &metaStats{}
			ctx := withMeta(r.Context(), stats)
			ictx := internal(ctx)

			var reqBuf bytes.Buffer
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = &teeReadCloser{rc: r.Body, buf: &reqBuf, max: opts.MaxRequestBody}
			}

			req, err := rec.StartRequest(ictx, silk.RequestStart{
				Method:      r.Method,
				Path:        r.URL.Path,
				QueryParams: r.URL.RawQuery,
				Headers:     flattenHeaders(r.Header),
				StartTime:   metaStart,
			})
			if err != nil {
				observability.IncRecorderErrors()
				log.Error("record request failed", "err", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}
			observability.IncRecordedRequests()
			overhead := time.Since(metaStart)

			bw := &bodyCaptureWriter{ResponseWriter: w, max: opts.MaxResponseBody}
			finish := func(status int, end time.Time) {
				finishStart := time.Now()
				respRaw := bw.buf.String()
				respBody := prettyBody(w.Header().Get("Content-Type"), respRaw)
				if _, err := rec.SaveResponse(ictx, silk.ResponseInput{
					RequestID:  req.ID,
					StatusCode: &status,
					RawBody:    &respRaw,
					Body:       &respBody,
					Headers:    flattenHeaders(w.Header()),
				}); err != nil {
					observability.IncRecorderErrors()
					log.Error("record response failed", "err", err, "request_id", req.ID)
				}

				reqRaw := reqBuf.String()
				reqBody := prettyBody(r.Header.Get("Content-Type"), reqRaw)
				in := silk.RequestEnd{
					StatusCode: &status,
					EndTime:    end,
					RawBody:    &reqRaw,
					Body:       &reqBody,
				}
				if opts.Meta {
					overhead += time.Since(finishStart)
					n, spent := stats.snapshot()
					metaMs := float64(overhead) / float64(time.Millisecond)
					spentMs := float64(spent) / float64(time.Millisecond)
					in.MetaTime = &metaMs
					in.MetaNumQueries = &n
					in.MetaTimeSpentQueries = &spentMs
				}
				if _, err := rec.CompleteRequest(ictx, req.ID, in); err != nil {
					observability.IncRecorderErrors()
					log.Error("complete request failed", "err", err, "request_id", req.ID)
				}
			}

			// a panicking handler is recorded as a 500 before the panic continues up the stack
			defer func() {
				if p := recover(); p != nil {
					finish(http.StatusInternalServerError, time.Now())
					panic(p)
				}
			}()
			next.ServeHTTP(bw, r.WithContext(WithRequest(ctx, req.ID)))
			end := time.Now()

			status := bw.status
			if status == 0 {
				status = http.StatusOK
			}
			finish(status, end)
		})
	}
}

const masked = "********"

// flattenHeaders joins repeated header values with ", " and masks credentials.
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
			out[k] = masked
		default:
			out[k] = strings.Join(v, ", ")
		}
	}
	return out
}

// prettyBody indents JSON bodies and returns anything else unchanged.
func prettyBody(contentType, raw string) string {
	if raw == "" || !strings.Contains(strings.ToLower(contentType), "json") {
		return raw
	}
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(raw), "", "    "); err != nil {
		return raw
	}
	return out.String()
}

// bodyCaptureWriter captures response body up to max bytes while writing through.
type bodyCaptureWriter struct {
	http.ResponseWriter
	status int
	max    int64
	buf    bytes.Buffer
}

func (w *bodyCaptureWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	if remain := int(w.max) - w.buf.Len(); remain > 0 {
		if len(b) > remain {
			b = b[:remain]
		}
		_, _ = w.buf.Write(b)
	}
	return n, err
}

func (w *bodyCaptureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *bodyCaptureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// teeReadCloser duplicates reads into an internal buffer up to max bytes.
type teeReadCloser struct {
	rc  io.ReadCloser
	buf *bytes.Buffer
	max int64
	cur int64
}

func (t *teeReadCloser) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 && t.cur < t.max {
		cp := int64(n)
		if remain := t.max - t.cur; cp > remain {
			cp = remain
		}
		_, _ = t.buf.Write(p[:cp])
		t.cur += cp
	}
	return n, err
}

func (t *teeReadCloser) Close() error {
	return t.rc.Close()
}
