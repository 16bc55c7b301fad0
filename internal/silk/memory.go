package silk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Units of work hold the store lock for their whole
// duration and replay an undo log when they fail.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[string]Request
	responses map[string]Response
	queries   map[string]SQLQuery
	profiles  map[string]Profile
	links     map[ProfileQuery]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]Request),
		responses: make(map[string]Response),
		queries:   make(map[string]SQLQuery),
		profiles:  make(map[string]Profile),
		links:     make(map[ProfileQuery]struct{}),
	}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx *memTx) error) error {
	return s.Atomic(ctx, func(tx Tx) error { return fn(tx.(*memTx)) })
}

func (s *MemoryStore) read() (*memTx, func()) {
	s.mu.RLock()
	return &memTx{s: s}, s.mu.RUnlock
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *Request) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateRequest(ctx, r) })
}

func (s *MemoryStore) UpdateRequest(ctx context.Context, r *Request) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateRequest(ctx, r) })
}

func (s *MemoryStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	tx, done := s.read()
	defer done()
	return tx.GetRequest(ctx, id)
}

func (s *MemoryStore) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	tx, done := s.read()
	defer done()
	return tx.ListRequests(ctx, f)
}

func (s *MemoryStore) CountRequests(ctx context.Context) (int64, error) {
	tx, done := s.read()
	defer done()
	return tx.CountRequests(ctx)
}

func (s *MemoryStore) DeleteRequest(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.DeleteRequest(ctx, id) })
}

func (s *MemoryStore) AdjustQueryCount(ctx context.Context, requestID string, delta int) error {
	return s.write(ctx, func(tx *memTx) error { return tx.AdjustQueryCount(ctx, requestID, delta) })
}

func (s *MemoryStore) LinkResponse(ctx context.Context, requestID, responseID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.LinkResponse(ctx, requestID, responseID) })
}

func (s *MemoryStore) CreateResponse(ctx context.Context, r *Response) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateResponse(ctx, r) })
}

func (s *MemoryStore) UpdateResponse(ctx context.Context, r *Response) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateResponse(ctx, r) })
}

func (s *MemoryStore) GetResponseByRequest(ctx context.Context, requestID string) (*Response, error) {
	tx, done := s.read()
	defer done()
	return tx.GetResponseByRequest(ctx, requestID)
}

func (s *MemoryStore) DeleteResponsesByRequest(ctx context.Context, requestID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.DeleteResponsesByRequest(ctx, requestID) })
}

func (s *MemoryStore) CreateSQLQuery(ctx context.Context, q *SQLQuery) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateSQLQuery(ctx, q) })
}

func (s *MemoryStore) GetSQLQuery(ctx context.Context, id string) (*SQLQuery, error) {
	tx, done := s.read()
	defer done()
	return tx.GetSQLQuery(ctx, id)
}

func (s *MemoryStore) DeleteSQLQuery(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.DeleteSQLQuery(ctx, id) })
}

func (s *MemoryStore) DeleteSQLQueriesByRequest(ctx context.Context, requestID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.DeleteSQLQueriesByRequest(ctx, requestID) })
}

func (s *MemoryStore) ListSQLQueriesByRequest(ctx context.Context, requestID string) ([]SQLQuery, error) {
	tx, done := s.read()
	defer done()
	return tx.ListSQLQueriesByRequest(ctx, requestID)
}

func (s *MemoryStore) SumQueryTimeByRequest(ctx context.Context, requestID string) (float64, error) {
	tx, done := s.read()
	defer done()
	return tx.SumQueryTimeByRequest(ctx, requestID)
}

func (s *MemoryStore) CreateProfile(ctx context.Context, p *Profile) error {
	return s.write(ctx, func(tx *memTx) error { return tx.CreateProfile(ctx, p) })
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, p *Profile) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UpdateProfile(ctx, p) })
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	tx, done := s.read()
	defer done()
	return tx.GetProfile(ctx, id)
}

func (s *MemoryStore) ListProfilesByRequest(ctx context.Context, requestID string) ([]Profile, error) {
	tx, done := s.read()
	defer done()
	return tx.ListProfilesByRequest(ctx, requestID)
}

func (s *MemoryStore) DeleteProfilesByRequest(ctx context.Context, requestID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.DeleteProfilesByRequest(ctx, requestID) })
}

func (s *MemoryStore) LinkQuery(ctx context.Context, profileID, queryID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.LinkQuery(ctx, profileID, queryID) })
}

func (s *MemoryStore) UnlinkQuery(ctx context.Context, queryID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UnlinkQuery(ctx, queryID) })
}

func (s *MemoryStore) UnlinkProfile(ctx context.Context, profileID string) error {
	return s.write(ctx, func(tx *memTx) error { return tx.UnlinkProfile(ctx, profileID) })
}

func (s *MemoryStore) ListSQLQueriesByProfile(ctx context.Context, profileID string) ([]SQLQuery, error) {
	tx, done := s.read()
	defer done()
	return tx.ListSQLQueriesByProfile(ctx, profileID)
}

func (s *MemoryStore) SumQueryTimeByProfile(ctx context.Context, profileID string) (float64, error) {
	tx, done := s.read()
	defer done()
	return tx.SumQueryTimeByProfile(ctx, profileID)
}

// memTx operates on the store maps; the caller holds the store lock.
type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// remember records how to restore key in m to its current state.
func remember[K comparable, V any](t *memTx, m map[K]V, key K) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

func (t *memTx) CreateRequest(_ context.Context, r *Request) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := t.s.requests[r.ID]; ok {
		return fmt.Errorf("create request %s: duplicate id", r.ID)
	}
	r.touch()
	remember(t, t.s.requests, r.ID)
	t.s.requests[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRequest(_ context.Context, r *Request) error {
	cur, ok := t.s.requests[r.ID]
	if !ok {
		return fmt.Errorf("update request %s: %w", r.ID, ErrNotFound)
	}
	r.touch()
	next := *r
	next.NumSQLQueries = cur.NumSQLQueries
	remember(t, t.s.requests, r.ID)
	t.s.requests[r.ID] = next
	return nil
}

func (t *memTx) GetRequest(_ context.Context, id string) (*Request, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("get request %s: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (t *memTx) ListRequests(_ context.Context, f RequestFilter) ([]Request, error) {
	out := make([]Request, 0, len(t.s.requests))
	for _, r := range t.s.requests {
		if f.Path != "" && r.Path != f.Path {
			continue
		}
		if f.Method != "" && r.Method != f.Method {
			continue
		}
		if !f.StartedBefore.IsZero() && !r.StartTime.Before(f.StartedBefore) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			if f.OldestFirst {
				return out[i].StartTime.Before(out[j].StartTime)
			}
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Request{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) CountRequests(context.Context) (int64, error) {
	return int64(len(t.s.requests)), nil
}

func (t *memTx) DeleteRequest(_ context.Context, id string) error {
	if _, ok := t.s.requests[id]; !ok {
		return fmt.Errorf("delete request %s: %w", id, ErrNotFound)
	}
	remember(t, t.s.requests, id)
	delete(t.s.requests, id)
	return nil
}

func (t *memTx) AdjustQueryCount(_ context.Context, requestID string, delta int) error {
	r, ok := t.s.requests[requestID]
	if !ok {
		return fmt.Errorf("adjust query count %s: %w", requestID, ErrNotFound)
	}
	remember(t, t.s.requests, requestID)
	r.NumSQLQueries += delta
	t.s.requests[requestID] = r
	return nil
}

func (t *memTx) LinkResponse(_ context.Context, requestID, responseID string) error {
	r, ok := t.s.requests[requestID]
	if !ok {
		return fmt.Errorf("link response %s: %w", requestID, ErrNotFound)
	}
	remember(t, t.s.requests, requestID)
	r.ResponseID = &responseID
	t.s.requests[requestID] = r
	return nil
}

func (t *memTx) CreateResponse(_ context.Context, r *Response) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := t.s.responses[r.ID]; ok {
		return fmt.Errorf("create response %s: duplicate id", r.ID)
	}
	remember(t, t.s.responses, r.ID)
	t.s.responses[r.ID] = *r
	return nil
}

func (t *memTx) UpdateResponse(_ context.Context, r *Response) error {
	if _, ok := t.s.responses[r.ID]; !ok {
		return fmt.Errorf("update response %s: %w", r.ID, ErrNotFound)
	}
	remember(t, t.s.responses, r.ID)
	t.s.responses[r.ID] = *r
	return nil
}

func (t *memTx) GetResponseByRequest(_ context.Context, requestID string) (*Response, error) {
	for _, r := range t.s.responses {
		if r.RequestID == requestID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("get response for %s: %w", requestID, ErrNotFound)
}

func (t *memTx) DeleteResponsesByRequest(_ context.Context, requestID string) error {
	for id, r := range t.s.responses {
		if r.RequestID == requestID {
			remember(t, t.s.responses, id)
			delete(t.s.responses, id)
		}
	}
	return nil
}

func (t *memTx) CreateSQLQuery(_ context.Context, q *SQLQuery) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if _, ok := t.s.queries[q.ID]; ok {
		return fmt.Errorf("create sql query %s: duplicate id", q.ID)
	}
	q.touch()
	remember(t, t.s.queries, q.ID)
	t.s.queries[q.ID] = *q
	return nil
}

func (t *memTx) GetSQLQuery(_ context.Context, id string) (*SQLQuery, error) {
	q, ok := t.s.queries[id]
	if !ok {
		return nil, fmt.Errorf("get sql query %s: %w", id, ErrNotFound)
	}
	return &q, nil
}

func (t *memTx) DeleteSQLQuery(_ context.Context, id string) error {
	if _, ok := t.s.queries[id]; !ok {
		return fmt.Errorf("delete sql query %s: %w", id, ErrNotFound)
	}
	remember(t, t.s.queries, id)
	delete(t.s.queries, id)
	return nil
}

func (t *memTx) DeleteSQLQueriesByRequest(_ context.Context, requestID string) error {
	for id, q := range t.s.queries {
		if q.RequestID != nil && *q.RequestID == requestID {
			remember(t, t.s.queries, id)
			delete(t.s.queries, id)
		}
	}
	return nil
}

func (t *memTx) ListSQLQueriesByRequest(_ context.Context, requestID string) ([]SQLQuery, error) {
	out := []SQLQuery{}
	for _, q := range t.s.queries {
		if q.RequestID != nil && *q.RequestID == requestID {
			out = append(out, q)
		}
	}
	sortQueries(out)
	return out, nil
}

func (t *memTx) SumQueryTimeByRequest(ctx context.Context, requestID string) (float64, error) {
	qs, _ := t.ListSQLQueriesByRequest(ctx, requestID)
	return sumTimeTaken(qs), nil
}

func (t *memTx) CreateProfile(_ context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := t.s.profiles[p.ID]; ok {
		return fmt.Errorf("create profile %s: duplicate id", p.ID)
	}
	p.touch()
	remember(t, t.s.profiles, p.ID)
	t.s.profiles[p.ID] = *p
	return nil
}

func (t *memTx) UpdateProfile(_ context.Context, p *Profile) error {
	if _, ok := t.s.profiles[p.ID]; !ok {
		return fmt.Errorf("update profile %s: %w", p.ID, ErrNotFound)
	}
	p.touch()
	remember(t, t.s.profiles, p.ID)
	t.s.profiles[p.ID] = *p
	return nil
}

func (t *memTx) GetProfile(_ context.Context, id string) (*Profile, error) {
	p, ok := t.s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("get profile %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) ListProfilesByRequest(_ context.Context, requestID string) ([]Profile, error) {
	out := []Profile{}
	for _, p := range t.s.profiles {
		if p.RequestID != nil && *p.RequestID == requestID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) DeleteProfilesByRequest(_ context.Context, requestID string) error {
	for id, p := range t.s.profiles {
		if p.RequestID != nil && *p.RequestID == requestID {
			remember(t, t.s.profiles, id)
			delete(t.s.profiles, id)
		}
	}
	return nil
}

func (t *memTx) LinkQuery(_ context.Context, profileID, queryID string) error {
	link := ProfileQuery{ProfileID: profileID, SQLQueryID: queryID}
	remember(t, t.s.links, link)
	t.s.links[link] = struct{}{}
	return nil
}

func (t *memTx) UnlinkQuery(_ context.Context, queryID string) error {
	for link := range t.s.links {
		if link.SQLQueryID == queryID {
			remember(t, t.s.links, link)
			delete(t.s.links, link)
		}
	}
	return nil
}

func (t *memTx) UnlinkProfile(_ context.Context, profileID string) error {
	for link := range t.s.links {
		if link.ProfileID == profileID {
			remember(t, t.s.links, link)
			delete(t.s.links, link)
		}
	}
	return nil
}

func (t *memTx) ListSQLQueriesByProfile(_ context.Context, profileID string) ([]SQLQuery, error) {
	out := []SQLQuery{}
	for link := range t.s.links {
		if link.ProfileID != profileID {
			continue
		}
		if q, ok := t.s.queries[link.SQLQueryID]; ok {
			out = append(out, q)
		}
	}
	sortQueries(out)
	return out, nil
}

func (t *memTx) SumQueryTimeByProfile(ctx context.Context, profileID string) (float64, error) {
	qs, _ := t.ListSQLQueriesByProfile(ctx, profileID)
	return sumTimeTaken(qs), nil
}

func sortQueries(qs []SQLQuery) {
	sort.Slice(qs, func(i, j int) bool {
		if !qs[i].StartTime.Equal(qs[j].StartTime) {
			return qs[i].StartTime.Before(qs[j].StartTime)
		}
		return qs[i].ID < qs[j].ID
	})
}

func sumTimeTaken(qs []SQLQuery) float64 {
	var total float64
	for _, q := range qs {
		if q.TimeTaken != nil {
			total += *q.TimeTaken
		}
	}
	return total
}
