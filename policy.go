package policy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/google/uuid"
)

// Identifiable lets a structured Key carry fields beyond its sharing id;
// only ID() is used to address the backend and to coalesce concurrent
// Get calls, the key value itself is still forwarded verbatim to
// GenerateFunc (spec.md §3 "Key").
type Identifiable interface {
	ID() string
}

// Config configures a Policy. Every field is optional: a zero Rule
// compiles to an empty Rule, and Backend, Segment, Logger and Stats
// default to safe no-ops, matching the defaulting style of the teacher's
// own FailoverConfig.
type Config struct {
	// Name is added to logs and stats.
	Name string

	Rule RuleOptions

	// Backend is the segment-addressed cache store. Nil disables caching:
	// Policy still coalesces and generates, it just never reads or writes
	// a backend.
	Backend Backend

	// Segment namespaces this Policy's ids inside Backend.
	Segment string

	Logger ctxd.Logger
	Stats  stats.Tracker
}

// Policy coordinates callers with a Backend, enforcing expiration,
// staleness and single-flight regeneration per a compiled Rule.
//
// Use NewPolicy to construct one; the zero value is not usable.
type Policy struct {
	name    string
	segment string

	hasBackend bool
	backend    Backend

	ruleRef atomic.Pointer[Rule]

	log     ctxd.Logger
	tracker stats.Tracker

	stats           Stats
	pendings        *pendings
	pendingGenerate *pendingGenerateTable
}

// NewPolicy compiles config.Rule and returns a ready Policy.
func NewPolicy(config Config) (*Policy, error) {
	hasBackend := config.Backend != nil

	backend := config.Backend
	if backend == nil {
		backend = NoOpBackend{}
	}

	if err := backend.ValidateSegmentName(config.Segment); err != nil {
		return nil, ctxd.WrapError(context.Background(), err, "invalid segment name", "segment", config.Segment)
	}

	rule, err := CompileRule(config.Rule, hasBackend)
	if err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = ctxd.NoOpLogger{}
	}

	tracker := config.Stats
	if tracker == nil {
		tracker = stats.NoOp{}
	}

	p := &Policy{
		name:            config.Name,
		segment:         config.Segment,
		hasBackend:      hasBackend,
		backend:         backend,
		log:             log,
		tracker:         tracker,
		pendings:        newPendings(),
		pendingGenerate: newPendingGenerateTable(),
	}
	p.ruleRef.Store(&rule)

	return p, nil
}

// SetRule replaces the Policy's Rule atomically (spec.md §3 invariant 6).
func (p *Policy) SetRule(opts RuleOptions) error {
	rule, err := CompileRule(opts, p.hasBackend)
	if err != nil {
		return err
	}

	p.ruleRef.Store(&rule)

	return nil
}

func (p *Policy) currentRule() Rule {
	return *p.ruleRef.Load()
}

func (p *Policy) trackAdd(ctx context.Context, metric string, delta float64) {
	p.tracker.Add(ctx, metric, delta, "name", p.name)
}

// Get resolves key through single-flight coalescing, stale-while-
// revalidate serving and, when needed, generation (spec.md §4.3-§4.4).
//
// Concurrent Get calls for the same id share one backend read and, if
// generation is triggered, one generator invocation; ctx cancellation
// only affects the calling goroutine's own wait, never the coalescing
// group it joined (see SPEC_FULL.md §5).
func (p *Policy) Get(ctx context.Context, key interface{}) (value interface{}, cached *CachedEntry, report Report, err error) {
	id := resolveID(key)

	p.stats.gets.Add(1)
	p.trackAdd(ctx, MetricGet, 1)

	pg, owner := p.pendings.attach(id)

	if owner {
		reqID := uuid.NewString()
		p.log.Debug(ctx, "cache get", "name", p.name, "id", id, "requestID", reqID)
		p.beginGet(ctx, p.currentRule(), id, key, pg, reqID)
	} else {
		p.trackAdd(ctx, MetricCoalesced, 1)
	}

	res, waitErr := pg.wait(ctx)
	if waitErr != nil {
		return nil, nil, Report{}, waitErr
	}

	return res.Value, res.Cached, res.Report, res.Err
}

// Set stores value under key with ttl. A zero or negative ttl substitutes
// the Rule-derived default computed with created=now (spec.md §4.5).
func (p *Policy) Set(ctx context.Context, key interface{}, value interface{}, ttlIn time.Duration) error {
	p.stats.sets.Add(1)
	p.trackAdd(ctx, MetricSet, 1)

	if !p.hasBackend {
		return nil
	}

	id := resolveID(key)

	effectiveTTL := ttlIn
	if effectiveTTL <= 0 {
		now := time.Now()
		effectiveTTL = ttl(p.currentRule(), now, now)
	}

	err := p.backend.Set(ctx, Address{Segment: p.segment, ID: id}, value, effectiveTTL)
	if err != nil {
		p.stats.errors.Add(1)
		p.trackAdd(ctx, MetricError, 1)
	}

	return err
}

// Drop removes key's cached entry. A key with no extractable id fails
// synchronously with ErrInvalidKey (spec.md §4.5).
func (p *Policy) Drop(ctx context.Context, key interface{}) error {
	id := resolveID(key)
	if id == "" {
		return ErrInvalidKey
	}

	if !p.hasBackend {
		return nil
	}

	err := p.backend.Drop(ctx, Address{Segment: p.segment, ID: id})
	if err != nil {
		p.stats.errors.Add(1)
		p.trackAdd(ctx, MetricError, 1)
	}

	return err
}

// IsReady reports the backend's liveness. A Policy without a backend is
// never ready.
func (p *Policy) IsReady(ctx context.Context) bool {
	if !p.hasBackend {
		return false
	}

	return p.backend.IsReady(ctx)
}

// TTL is the public wrapper over the TTL calculator (spec.md §4.2), using
// the wall clock for now.
func (p *Policy) TTL(created time.Time) time.Duration {
	return ttl(p.currentRule(), created, time.Now())
}

// Stats returns a snapshot of the Policy's counters.
func (p *Policy) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

func resolveID(key interface{}) string {
	switch k := key.(type) {
	case nil:
		return ""
	case string:
		return k
	case Identifiable:
		return k.ID()
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}
