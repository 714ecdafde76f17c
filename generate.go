package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// pendingGenerateTable guards concurrent GenerateFunc invocations for the
// same id while a prior call is still within its PendingGenerateTimeout
// window (spec.md §3 "PendingGenerate Table").
type pendingGenerateTable struct {
	mu     sync.Mutex
	active map[string]bool
}

func newPendingGenerateTable() *pendingGenerateTable {
	return &pendingGenerateTable{active: map[string]bool{}}
}

// tryMark reports whether the caller may invoke the generator for id. If
// window is zero the guard is disabled entirely and every call may
// generate (spec.md §4.4: "mark pending only if pendingGenerateTimeout > 0").
func (t *pendingGenerateTable) tryMark(id string, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[id] {
		return false
	}

	if window > 0 {
		t.active[id] = true
		time.AfterFunc(window, func() { t.unmark(id) })
	}

	return true
}

func (t *pendingGenerateTable) unmark(id string) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

// beginGet drives the backend read and classification for the id owner of
// a coalescing group (spec.md §4.3 steps 3-6). It never blocks past the
// backend call: stale/miss generation is handed off to timers and a
// background goroutine, and every path ends by calling pg.resolve exactly
// once, directly or indirectly.
//
// The owner's own ctx is detached before it touches anything shared with
// the rest of the group: the backend read, generation and every attached
// waiter must survive the owner's own cancellation. Only the owner's own
// pg.wait(ctx) call, back in Policy.Get, observes it.
func (p *Policy) beginGet(ctx context.Context, rule Rule, id string, key interface{}, pg *pendingGet, reqID string) {
	ctx = detachedContext{ctx: ctx}

	addr := Address{Segment: p.segment, ID: id}

	if !p.hasBackend {
		p.enterGeneration(ctx, rule, id, key, pg, reqID, nil, Report{RequestID: reqID})
		return
	}

	start := time.Now()
	entry, rerr := p.backend.Get(ctx, addr)
	report := Report{RequestID: reqID, Msec: time.Since(start)}

	switch {
	case rerr == nil:
		report.HasStored = true
		report.Stored = entry.Stored
		report.TTL = entry.TTL

		stale := entry.IsStale(rule, time.Now())
		report.IsStale = stale

		waiters := uint64(pg.waiterCount())
		p.stats.hits.Add(waiters)
		p.trackAdd(ctx, MetricHit, float64(waiters))

		if !stale {
			p.log.Debug(ctx, "cache hit", "name", p.name, "id", id, "requestID", reqID)
			pg.resolve(pendingResult{Value: entry.Item, Cached: &entry, Report: report})

			return
		}

		p.stats.stales.Add(1)
		p.trackAdd(ctx, MetricStale, 1)
		p.log.Debug(ctx, "cache stale", "name", p.name, "id", id, "requestID", reqID)
		p.enterGeneration(ctx, rule, id, key, pg, reqID, &entry, report)

	case errors.Is(rerr, ErrCacheMiss):
		p.log.Debug(ctx, "cache miss", "name", p.name, "id", id, "requestID", reqID)
		p.enterGeneration(ctx, rule, id, key, pg, reqID, nil, report)

	default:
		report.Error = rerr
		p.stats.errors.Add(1)
		p.trackAdd(ctx, MetricError, 1)
		p.log.Error(ctx, "cache read failed", "name", p.name, "id", id, "requestID", reqID, "error", rerr)

		if rule.GenerateFunc == nil || !rule.GenerateOnReadError {
			pg.resolve(pendingResult{Err: rerr, Report: report})
			return
		}

		p.enterGeneration(ctx, rule, id, key, pg, reqID, nil, report)
	}
}

// enterGeneration implements spec.md §4.4: schedule the stale-fallback or
// miss-timeout appropriate to this call, then either invoke the generator
// or, if a prior generation is already pending for id, rely solely on the
// fallback just scheduled.
func (p *Policy) enterGeneration(
	ctx context.Context,
	rule Rule,
	id string,
	key interface{},
	pg *pendingGet,
	reqID string,
	stale *CachedEntry,
	report Report,
) {
	if rule.GenerateFunc == nil {
		var value interface{}

		var cached *CachedEntry

		if stale != nil {
			value = stale.Item
			cached = stale
		}

		pg.resolve(pendingResult{Value: value, Cached: cached, Report: report})

		return
	}

	if stale != nil {
		if remaining := stale.TTL - rule.StaleTimeout; remaining > 0 {
			time.AfterFunc(rule.StaleTimeout, func() {
				p.log.Debug(ctx, "serving stale value on fallback", "name", p.name, "id", id, "requestID", reqID)
				pg.resolve(pendingResult{Value: stale.Item, Cached: stale, Report: report})
			})
		}
	} else if rule.GenerateTimeout > 0 {
		time.AfterFunc(rule.GenerateTimeout, func() {
			timeoutReport := report
			timeoutReport.Error = ErrGenerateTimeout
			pg.resolve(pendingResult{Err: ErrGenerateTimeout, Report: timeoutReport})
		})
	}

	if !p.pendingGenerate.tryMark(id, rule.PendingGenerateTimeout) {
		p.log.Debug(ctx, "generation already pending, relying on fallback", "name", p.name, "id", id, "requestID", reqID)
		return
	}

	p.stats.generates.Add(1)
	p.trackAdd(ctx, MetricGenerate, 1)

	go p.runGenerate(detachedContext{ctx: ctx}, rule, id, key, pg, reqID, stale, report)
}

// runGenerate invokes rule.GenerateFunc and applies the write-back rules
// of spec.md §4.4's "Producer callback" and "Finalization semantics".
func (p *Policy) runGenerate(
	ctx context.Context,
	rule Rule,
	id string,
	key interface{},
	pg *pendingGet,
	reqID string,
	stale *CachedEntry,
	report Report,
) {
	value, genTTL, generr := p.invokeGenerate(ctx, rule, key, id, reqID)
	p.pendingGenerate.unmark(id)

	switch {
	case (generr != nil && rule.DropOnError) || (generr == nil && genTTL == 0):
		p.dropGenerated(ctx, id)
		p.finalizeGenerate(pg, generr, stale, rule, value, report)

	case generr == nil:
		writeErr := p.writeGenerated(ctx, rule, id, value, genTTL)
		effectiveErr := writeErr

		if writeErr != nil && rule.GenerateIgnoreWriteError {
			effectiveErr = nil
		}

		p.finalizeGenerate(pg, effectiveErr, stale, rule, value, report)

	default:
		p.finalizeGenerate(pg, generr, stale, rule, value, report)
	}
}

func (p *Policy) invokeGenerate(ctx context.Context, rule Rule, key interface{}, id, reqID string) (value interface{}, ttl time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generate panic: %v", r)
		}
	}()

	p.log.Debug(ctx, "generating value", "name", p.name, "id", id, "requestID", reqID)

	return rule.GenerateFunc(ctx, key)
}

func (p *Policy) writeGenerated(ctx context.Context, rule Rule, id string, value interface{}, genTTL time.Duration) error {
	if genTTL == 0 {
		genTTL = ttl(rule, time.Now(), time.Now())
	}

	err := p.Set(ctx, id, value, genTTL)
	if err != nil {
		p.log.Warn(ctx, "failed to write generated value", "name", p.name, "id", id, "error", err)
	}

	return err
}

func (p *Policy) dropGenerated(ctx context.Context, id string) {
	if err := p.Drop(ctx, id); err != nil {
		p.log.Warn(ctx, "failed to drop cache entry after generation", "name", p.name, "id", id, "error", err)
	}
}

// finalizeGenerate implements spec.md §4.4's "Finalization semantics": a
// generator error with DropOnError disabled still serves the prior stale
// value, with the error surfaced alongside it.
func (p *Policy) finalizeGenerate(pg *pendingGet, err error, stale *CachedEntry, rule Rule, value interface{}, report Report) {
	report.Error = err

	if stale != nil && err != nil && !rule.DropOnError {
		pg.resolve(pendingResult{Value: stale.Item, Cached: stale, Err: err, Report: report})
		return
	}

	pg.resolve(pendingResult{Value: value, Err: err, Report: report})
}
