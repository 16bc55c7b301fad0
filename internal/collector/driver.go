package collector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"sync"
	"time"

	"go-silk/internal/observability"
	"go-silk/internal/silk"
)

var (
	driversMu sync.Mutex
	drivers   = make(map[string]*Driver)
)

// Register wraps d so that statements run with a recorded request context are
// stored as SQL queries, and registers it in database/sql under name:
//
//	collector.Register("sqlite-silk", &sqlite3.SQLiteDriver{}, rec, log)
//	db, _ := sql.Open("sqlite-silk", dsn)
//
// The recorder's own store must not use the wrapped driver for the same process
// unless its writes carry the collector's internal context.
// Panics if the driver is nil or the name is already taken.
func Register(name string, d driver.Driver, rec *silk.Recorder, log *slog.Logger) *Driver {
	driversMu.Lock()
	defer driversMu.Unlock()

	if d == nil {
		panic("collector: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("collector: Register called twice for driver " + name)
	}
	switch {
	case log != nil:
	case rec != nil:
		log = rec.Logger()
	default:
		log = slog.Default()
	}

	wrapped := &Driver{real: d, rec: rec, log: log}
	drivers[name] = wrapped
	sql.Register(name, wrapped)
	return wrapped
}

// Driver is a database/sql driver that records executed statements.
type Driver struct {
	real driver.Driver
	rec  *silk.Recorder
	log  *slog.Logger
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := d.real.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{real: c, d: d}, nil
}

// observe records query as run between start and now.
func (d *Driver) observe(ctx context.Context, query string, start time.Time) {
	end := time.Now()
	if isInternal(ctx) {
		if m := metaFrom(ctx); m != nil {
			m.add(end.Sub(start))
		}
		return
	}
	reqID, ok := RequestID(ctx)
	if !ok || d.rec == nil {
		return
	}
	_, err := d.rec.RecordQuery(internal(ctx), silk.QueryInput{
		Query:      query,
		StartTime:  start,
		EndTime:    &end,
		RequestID:  &reqID,
		Traceback:  Traceback(2),
		ProfileIDs: ActiveProfiles(ctx),
	})
	if err != nil {
		observability.IncRecorderErrors()
		d.log.Warn("record sql query failed", "err", err, "request_id", reqID)
		return
	}
	observability.IncRecordedQueries()
}

type conn struct {
	real driver.Conn
	d    *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		st  driver.Stmt
		err error
	)
	if px, ok := c.real.(driver.ConnPrepareContext); ok {
		st, err = px.PrepareContext(ctx, query)
	} else {
		st, err = c.real.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &stmt{real: st, query: query, d: c.d}, nil
}

func (c *conn) Close() error { return c.real.Close() }

func (c *conn) Begin() (driver.Tx, error) {
	return c.real.Begin()
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bx, ok := c.real.(driver.ConnBeginTx); ok {
		return bx.BeginTx(ctx, opts)
	}
	return c.real.Begin()
}

func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.real.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if nc, ok := c.real.(driver.NamedValueChecker); ok {
		return nc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

func (c *conn) ResetSession(ctx context.Context) error {
	if r, ok := c.real.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *conn) QueryContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Rows, error) {
	if qx, ok := c.real.(driver.QueryerContext); ok {
		start := time.Now()
		rows, err := qx.QueryContext(ctx, q, a)
		if err != driver.ErrSkip {
			c.d.observe(ctx, q, start)
		}
		return rows, err
	}
	return nil, driver.ErrSkip
}

func (c *conn) ExecContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Result, error) {
	if ex, ok := c.real.(driver.ExecerContext); ok {
		start := time.Now()
		res, err := ex.ExecContext(ctx, q, a)
		if err != driver.ErrSkip {
			c.d.observe(ctx, q, start)
		}
		return res, err
	}
	return nil, driver.ErrSkip
}

type stmt struct {
	real  driver.Stmt
	query string
	d     *Driver
}

func (s *stmt) Close() error  { return s.real.Close() }
func (s *stmt) NumInput() int { return s.real.NumInput() }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.real.Exec(args)
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.real.Query(args)
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	defer s.d.observe(ctx, s.query, start)
	if ex, ok := s.real.(driver.StmtExecContext); ok {
		return ex.ExecContext(ctx, args)
	}
	return s.real.Exec(namedValueToValue(args))
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	defer s.d.observe(ctx, s.query, start)
	if qx, ok := s.real.(driver.StmtQueryContext); ok {
		return qx.QueryContext(ctx, args)
	}
	return s.real.Query(namedValueToValue(args))
}

func namedValueToValue(named []driver.NamedValue) []driver.Value {
	vs := make([]driver.Value, len(named))
	for i, nv := range named {
		vs[i] = nv.Value
	}
	return vs
}
