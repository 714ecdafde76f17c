package policy

import (
	"sync/atomic"
	"time"
)

// Metric names reported to an optional bool64/stats.Tracker, named after
// the MetricHit/MetricMiss/MetricEvict convention every call site of the
// teacher's own Metric* constants follows.
const (
	MetricSet       = "policy_set"
	MetricGet       = "policy_get"
	MetricHit       = "policy_hit"
	MetricStale     = "policy_stale"
	MetricGenerate  = "policy_generate"
	MetricError     = "policy_error"
	MetricCoalesced = "policy_coalesced"

	// Memory backend metrics, named after memory.go/evict.go's own
	// MetricHit/MetricMiss/MetricWrite/MetricEvict/MetricItems convention.
	MetricMemoryHit   = "memory_hit"
	MetricMemoryMiss  = "memory_miss"
	MetricMemoryWrite = "memory_write"
	MetricMemoryEvict = "memory_evict"
	MetricMemoryItems = "memory_items"
)

// Stats are the six monotonic counters of spec.md §3, tracked with atomics
// so they can be incremented from the coordinator's background goroutines
// without a lock.
type Stats struct {
	sets      atomic.Uint64
	gets      atomic.Uint64
	hits      atomic.Uint64
	stales    atomic.Uint64
	generates atomic.Uint64
	errors    atomic.Uint64
}

// StatsSnapshot is a read-only view of Stats at a point in time.
type StatsSnapshot struct {
	Sets      uint64
	Gets      uint64
	Hits      uint64
	Stales    uint64
	Generates uint64
	Errors    uint64
}

// Snapshot reads all counters. There is no cross-counter atomicity
// guarantee, matching the plain-counter semantics of spec.md §3.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Sets:      s.sets.Load(),
		Gets:      s.gets.Load(),
		Hits:      s.hits.Load(),
		Stales:    s.stales.Load(),
		Generates: s.generates.Load(),
		Errors:    s.errors.Load(),
	}
}

// Report is the per-call diagnostic record delivered alongside a Get
// result, mirroring spec.md §6's report shape.
type Report struct {
	RequestID string
	Msec      time.Duration
	Error     error

	// HasStored reports whether Stored/TTL/IsStale reflect an entry that
	// was actually observed in the backend.
	HasStored bool
	Stored    time.Time
	TTL       time.Duration
	IsStale   bool
}
