package policy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync"
)

// pendingResult is the completion every waiter attached to a pendingGet
// eventually observes.
type pendingResult struct {
	Value  interface{}
	Cached *CachedEntry
	Report Report
	Err    error
}

// pendingGet coordinates the callers coalesced onto a single in-flight
// Get for one id. It is the Go-shaped equivalent of the source's ordered
// waiter list (spec.md §3 "Pendings Table"): instead of a queue of
// callbacks, every waiter blocks on the same broadcast channel and reads
// the same immutable result once it closes.
type pendingGet struct {
	id       string
	pendings *pendings

	done    chan struct{}
	once    sync.Once
	result  pendingResult
	waiters atomic.Int64
}

func newPendingGet(id string, owner *pendings) *pendingGet {
	return &pendingGet{id: id, pendings: owner, done: make(chan struct{})}
}

// resolve delivers result to every attached waiter. Only the first call
// has any effect (spec.md §4.4 "first of {...} wins"); this is the once-
// guard the source implements as a wrapped deliver closure (spec.md §9).
//
// The pendings table entry for id is removed before done is closed, in
// the same once-guarded step: this is what golang.org/x/sync/singleflight
// does under its own lock, and what makes it safe. A new Get attaching
// after resolve returns is guaranteed to find no entry and start a fresh
// coalescing group rather than observe a resolved-but-still-present one.
func (p *pendingGet) resolve(result pendingResult) {
	p.once.Do(func() {
		p.pendings.release(p.id)
		p.result = result
		close(p.done)
	})
}

// wait blocks until resolve has been called, or ctx is done.
func (p *pendingGet) wait(ctx context.Context) (pendingResult, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return pendingResult{}, ctx.Err()
	}
}

func (p *pendingGet) waiterCount() int64 {
	return p.waiters.Load()
}

// pendings is the per-Policy table of in-flight gets, keyed by id. It uses
// a lock-free sharded map instead of a mutex-guarded plain map so that the
// hot "is somebody already fetching this id" lookup never blocks on a
// single shared lock under high fan-out.
type pendings struct {
	m *xsync.Map
}

func newPendings() *pendings {
	return &pendings{m: xsync.NewMap()}
}

// attach registers the caller as a waiter for id, returning the shared
// pendingGet and whether the caller is the one that must actually drive
// the backend read (owner == true), per spec.md §4.3 step 2.
func (p *pendings) attach(id string) (pg *pendingGet, owner bool) {
	candidate := newPendingGet(id, p)

	actual, loaded := p.m.LoadOrStore(id, candidate)
	pg = actual.(*pendingGet)
	pg.waiters.Add(1)

	return pg, !loaded
}

// release removes id's entry, called exactly once by the owning
// pendingGet's own resolve, so the next Get for the same id starts a
// fresh coalescing group.
func (p *pendings) release(id string) {
	p.m.Delete(id)
}
