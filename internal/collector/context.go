// Package collector records requests, SQL queries and profiles of a running
// net/http service into a silk.Recorder.
package collector

import (
	"context"
	"sync"
	"time"
)

type ctxKey int

const (
	requestKey ctxKey = iota
	profilesKey
	metaKey
	internalKey
)

// WithRequest marks ctx as belonging to the recorded request id.
func WithRequest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// RequestID returns the recorded request ctx belongs to.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestKey).(string)
	return id, ok && id != ""
}

func withProfile(ctx context.Context, id string) context.Context {
	parent := ActiveProfiles(ctx)
	ids := make([]string, 0, len(parent)+1)
	ids = append(ids, parent...)
	ids = append(ids, id)
	return context.WithValue(ctx, profilesKey, ids)
}

// ActiveProfiles returns the ids of the profiles open in ctx, outermost first.
func ActiveProfiles(ctx context.Context) []string {
	ids, _ := ctx.Value(profilesKey).([]string)
	return ids
}

// metaStats tallies the queries the collector itself issues while recording a request.
type metaStats struct {
	mu    sync.Mutex
	count int
	total time.Duration
}

func (m *metaStats) add(d time.Duration) {
	m.mu.Lock()
	m.count++
	m.total += d
	m.mu.Unlock()
}

func (m *metaStats) snapshot() (int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, m.total
}

func withMeta(ctx context.Context, m *metaStats) context.Context {
	return context.WithValue(ctx, metaKey, m)
}

func metaFrom(ctx context.Context) *metaStats {
	m, _ := ctx.Value(metaKey).(*metaStats)
	return m
}

// internal detaches ctx from cancellation and marks it so the instrumented
// driver does not record the recorder's own statements.
func internal(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), internalKey, true)
}

func isInternal(ctx context.Context) bool {
	v, _ := ctx.Value(internalKey).(bool)
	return v
}
