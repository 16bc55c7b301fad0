package silk

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCounterPairing marks a failed query write whose counter update was rolled back with it.
	ErrCounterPairing = errors.New("query counter pairing failed")
	ErrMissingRequest = errors.New("response requires a request")
)

// RequestFilter selects requests, most recent first unless OldestFirst is set.
type RequestFilter struct {
	Path          string
	Method        string
	StartedBefore time.Time
	OldestFirst   bool
	Limit         int
	Offset        int
}

// Tx is the set of record operations available inside and outside a unit of work.
type Tx interface {
	CreateRequest(ctx context.Context, r *Request) error
	// UpdateRequest writes every column except num_sql_queries, which only AdjustQueryCount changes.
	UpdateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)
	CountRequests(ctx context.Context) (int64, error)
	DeleteRequest(ctx context.Context, id string) error
	// AdjustQueryCount adds delta to num_sql_queries without reading it first.
	AdjustQueryCount(ctx context.Context, requestID string, delta int) error
	LinkResponse(ctx context.Context, requestID, responseID string) error

	CreateResponse(ctx context.Context, r *Response) error
	UpdateResponse(ctx context.Context, r *Response) error
	GetResponseByRequest(ctx context.Context, requestID string) (*Response, error)
	DeleteResponsesByRequest(ctx context.Context, requestID string) error

	CreateSQLQuery(ctx context.Context, q *SQLQuery) error
	GetSQLQuery(ctx context.Context, id string) (*SQLQuery, error)
	DeleteSQLQuery(ctx context.Context, id string) error
	DeleteSQLQueriesByRequest(ctx context.Context, requestID string) error
	ListSQLQueriesByRequest(ctx context.Context, requestID string) ([]SQLQuery, error)
	SumQueryTimeByRequest(ctx context.Context, requestID string) (float64, error)

	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfilesByRequest(ctx context.Context, requestID string) ([]Profile, error)
	DeleteProfilesByRequest(ctx context.Context, requestID string) error

	LinkQuery(ctx context.Context, profileID, queryID string) error
	UnlinkQuery(ctx context.Context, queryID string) error
	UnlinkProfile(ctx context.Context, profileID string) error
	ListSQLQueriesByProfile(ctx context.Context, profileID string) ([]SQLQuery, error)
	SumQueryTimeByProfile(ctx context.Context, profileID string) (float64, error)
}

// Store persists records. Atomic runs fn as one unit of work: every write made through
// the given Tx is kept when fn returns nil and discarded otherwise.
type Store interface {
	Tx
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}
