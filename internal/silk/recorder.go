package silk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Recorder drives the record lifecycle over a Store.
type Recorder struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Store returns the underlying store for read access.
func (rc *Recorder) Store() Store { return rc.store }

// Logger returns the logger the recorder was built with.
func (rc *Recorder) Logger() *slog.Logger { return rc.log }

type RequestStart struct {
	Method      string
	Path        string
	QueryParams string
	Headers     map[string]string
	RawBody     *string
	Body        *string
	ViewName    string
	StartTime   time.Time
}

// RequestEnd carries end of request fields. Nil pointers leave the stored value unchanged.
type RequestEnd struct {
	StatusCode           *int
	EndTime              time.Time
	RawBody              *string
	Body                 *string
	Headers              map[string]string
	ViewName             string
	MetaTime             *float64
	MetaNumQueries       *int
	MetaTimeSpentQueries *float64
	Pyprofile            string
}

type ResponseInput struct {
	RequestID  string
	StatusCode *int
	RawBody    *string
	Body       *string
	Headers    map[string]string
}

type QueryInput struct {
	Query     string
	StartTime time.Time
	EndTime   *time.Time
	RequestID *string
	Traceback string
	// ProfileIDs are linked to the query in the same unit of work.
	ProfileIDs []string
}

type ProfileStart struct {
	Name       string
	RequestID  *string
	FilePath   string
	LineNum    *int
	EndLineNum *int
	FuncName   *string
	Dynamic    bool
	StartTime  time.Time
}

type ProfileEnd struct {
	EndTime         time.Time
	EndLineNum      *int
	ExceptionRaised bool
}

type PruneOptions struct {
	MaxRequests int
	OlderThan   time.Duration
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (rc *Recorder) StartRequest(ctx context.Context, in RequestStart) (*Request, error) {
	encoded, err := EncodeHeaders(in.Headers)
	if err != nil {
		return nil, err
	}
	start := in.StartTime
	if start.IsZero() {
		start = rc.now()
	}
	req := &Request{
		Path:           in.Path,
		QueryParams:    in.QueryParams,
		RawBody:        orEmpty(in.RawBody),
		Body:           orEmpty(in.Body),
		Method:         in.Method,
		StartTime:      start,
		ViewName:       in.ViewName,
		EncodedHeaders: encoded,
	}
	req.touch()
	if err := rc.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	rc.log.Debug("request recorded", "id", req.ID, "method", req.Method, "path", req.Path)
	return req, nil
}

func (rc *Recorder) CompleteRequest(ctx context.Context, id string, in RequestEnd) (*Request, error) {
	var out *Request
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		end := in.EndTime
		if end.IsZero() {
			end = rc.now()
		}
		req.EndTime = &end
		if in.StatusCode != nil {
			req.StatusCode = in.StatusCode
		}
		if in.RawBody != nil {
			req.RawBody = *in.RawBody
		}
		if in.Body != nil {
			req.Body = *in.Body
		}
		if in.Headers != nil {
			encoded, err := EncodeHeaders(in.Headers)
			if err != nil {
				return err
			}
			req.EncodedHeaders = encoded
		}
		if in.ViewName != "" {
			req.ViewName = in.ViewName
		}
		if in.MetaTime != nil {
			req.MetaTime = in.MetaTime
		}
		if in.MetaNumQueries != nil {
			req.MetaNumQueries = in.MetaNumQueries
		}
		if in.MetaTimeSpentQueries != nil {
			req.MetaTimeSpentQueries = in.MetaTimeSpentQueries
		}
		if in.Pyprofile != "" {
			req.Pyprofile = in.Pyprofile
		}
		req.touch()
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete request: %w", err)
	}
	return out, nil
}

// SaveResponse stores the response of a request, replacing an earlier one, and links it back.
func (rc *Recorder) SaveResponse(ctx context.Context, in ResponseInput) (*Response, error) {
	if in.RequestID == "" {
		return nil, ErrMissingRequest
	}
	encoded, err := EncodeHeaders(in.Headers)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		RequestID:      in.RequestID,
		StatusCode:     in.StatusCode,
		RawBody:        orEmpty(in.RawBody),
		Body:           orEmpty(in.Body),
		EncodedHeaders: encoded,
	}
	err = rc.store.Atomic(ctx, func(tx Tx) error {
		if _, err := tx.GetRequest(ctx, in.RequestID); err != nil {
			return err
		}
		existing, err := tx.GetResponseByRequest(ctx, in.RequestID)
		switch {
		case err == nil:
			resp.ID = existing.ID
			if err := tx.UpdateResponse(ctx, resp); err != nil {
				return err
			}
		case errors.Is(err, ErrNotFound):
			if err := tx.CreateResponse(ctx, resp); err != nil {
				return err
			}
		default:
			return err
		}
		return tx.LinkResponse(ctx, in.RequestID, resp.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	return resp, nil
}

// RecordQuery stores a query and bumps its request's counter as one unit of work.
func (rc *Recorder) RecordQuery(ctx context.Context, in QueryInput) (*SQLQuery, error) {
	start := in.StartTime
	if start.IsZero() {
		start = rc.now()
	}
	q := &SQLQuery{
		Query:     in.Query,
		StartTime: start,
		EndTime:   in.EndTime,
		RequestID: in.RequestID,
		Traceback: in.Traceback,
	}
	q.touch()
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		if q.RequestID != nil {
			if err := tx.AdjustQueryCount(ctx, *q.RequestID, 1); err != nil {
				return err
			}
		}
		if err := tx.CreateSQLQuery(ctx, q); err != nil {
			return err
		}
		for _, pid := range in.ProfileIDs {
			if err := tx.LinkQuery(ctx, pid, q.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, pairingError("record query", err)
	}
	return q, nil
}

// DeleteQuery removes a query, its profile links and its contribution to the request counter.
func (rc *Recorder) DeleteQuery(ctx context.Context, id string) error {
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		q, err := tx.GetSQLQuery(ctx, id)
		if err != nil {
			return err
		}
		if q.RequestID != nil {
			if err := tx.AdjustQueryCount(ctx, *q.RequestID, -1); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if err := tx.UnlinkQuery(ctx, id); err != nil {
			return err
		}
		return tx.DeleteSQLQuery(ctx, id)
	})
	if err != nil {
		return pairingError("delete query", err)
	}
	return nil
}

func pairingError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrCounterPairing, err)
}

// RequestTimeOnQueries sums time_taken over the request's stored queries.
// It is computed from the queries themselves and may differ from num_sql_queries based estimates.
func (rc *Recorder) RequestTimeOnQueries(ctx context.Context, requestID string) (float64, error) {
	if _, err := rc.store.GetRequest(ctx, requestID); err != nil {
		return 0, err
	}
	return rc.store.SumQueryTimeByRequest(ctx, requestID)
}

func (rc *Recorder) StartProfile(ctx context.Context, in ProfileStart) (*Profile, error) {
	start := in.StartTime
	if start.IsZero() {
		start = rc.now()
	}
	p := &Profile{
		Name:       in.Name,
		StartTime:  start,
		RequestID:  in.RequestID,
		FilePath:   in.FilePath,
		LineNum:    in.LineNum,
		EndLineNum: in.EndLineNum,
		FuncName:   in.FuncName,
		Dynamic:    in.Dynamic,
	}
	p.touch()
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		if p.RequestID != nil {
			if _, err := tx.GetRequest(ctx, *p.RequestID); err != nil {
				return err
			}
		}
		return tx.CreateProfile(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("start profile: %w", err)
	}
	return p, nil
}

func (rc *Recorder) CompleteProfile(ctx context.Context, id string, in ProfileEnd) (*Profile, error) {
	var out *Profile
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		p, err := tx.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		end := in.EndTime
		if end.IsZero() {
			end = rc.now()
		}
		p.EndTime = &end
		if in.EndLineNum != nil {
			p.EndLineNum = in.EndLineNum
		}
		p.ExceptionRaised = in.ExceptionRaised
		p.touch()
		if err := tx.UpdateProfile(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete profile: %w", err)
	}
	return out, nil
}

// AttachQuery attributes an existing query to a profile.
func (rc *Recorder) AttachQuery(ctx context.Context, profileID, queryID string) error {
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		if _, err := tx.GetProfile(ctx, profileID); err != nil {
			return err
		}
		if _, err := tx.GetSQLQuery(ctx, queryID); err != nil {
			return err
		}
		return tx.LinkQuery(ctx, profileID, queryID)
	})
	if err != nil {
		return fmt.Errorf("attach query: %w", err)
	}
	return nil
}

// ProfileTimeOnQueries sums time_taken over the queries attributed to the profile.
func (rc *Recorder) ProfileTimeOnQueries(ctx context.Context, profileID string) (float64, error) {
	if _, err := rc.store.GetProfile(ctx, profileID); err != nil {
		return 0, err
	}
	return rc.store.SumQueryTimeByProfile(ctx, profileID)
}

// DeleteRequest removes a request together with its response, queries, profiles and links.
func (rc *Recorder) DeleteRequest(ctx context.Context, id string) error {
	err := rc.store.Atomic(ctx, func(tx Tx) error {
		return deleteRequest(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

func deleteRequest(ctx context.Context, tx Tx, id string) error {
	if _, err := tx.GetRequest(ctx, id); err != nil {
		return err
	}
	queries, err := tx.ListSQLQueriesByRequest(ctx, id)
	if err != nil {
		return err
	}
	for _, q := range queries {
		if err := tx.UnlinkQuery(ctx, q.ID); err != nil {
			return err
		}
	}
	profiles, err := tx.ListProfilesByRequest(ctx, id)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := tx.UnlinkProfile(ctx, p.ID); err != nil {
			return err
		}
	}
	if err := tx.DeleteSQLQueriesByRequest(ctx, id); err != nil {
		return err
	}
	if err := tx.DeleteProfilesByRequest(ctx, id); err != nil {
		return err
	}
	if err := tx.DeleteResponsesByRequest(ctx, id); err != nil {
		return err
	}
	return tx.DeleteRequest(ctx, id)
}

const pruneBatch = 100

// Prune deletes requests older than OlderThan, then the oldest requests beyond
// MaxRequests. It returns how many requests were deleted.
func (rc *Recorder) Prune(ctx context.Context, opts PruneOptions) (int, error) {
	deleted := 0
	// sweep deletes oldest first until nothing matches f or budget requests are gone.
	// A negative budget is unlimited.
	sweep := func(f RequestFilter, budget int) error {
		f.OldestFirst = true
		for budget != 0 {
			f.Limit = pruneBatch
			if budget > 0 && budget < pruneBatch {
				f.Limit = budget
			}
			batch, err := rc.store.ListRequests(ctx, f)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			for _, r := range batch {
				if err := rc.DeleteRequest(ctx, r.ID); err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return err
				}
				deleted++
				if budget > 0 {
					budget--
				}
			}
		}
		return nil
	}
	if opts.OlderThan > 0 {
		cutoff := rc.now().Add(-opts.OlderThan)
		if err := sweep(RequestFilter{StartedBefore: cutoff}, -1); err != nil {
			return deleted, fmt.Errorf("prune by age: %w", err)
		}
	}
	if opts.MaxRequests > 0 {
		n, err := rc.store.CountRequests(ctx)
		if err != nil {
			return deleted, fmt.Errorf("prune by count: %w", err)
		}
		if excess := int(n) - opts.MaxRequests; excess > 0 {
			if err := sweep(RequestFilter{}, excess); err != nil {
				return deleted, fmt.Errorf("prune by count: %w", err)
			}
		}
	}
	if deleted > 0 {
		rc.log.Info("pruned requests", "deleted", deleted)
	}
	return deleted, nil
}
