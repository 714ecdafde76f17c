package policy

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	pcache "github.com/patrickmn/go-cache"
)

// entry is what Memory actually stores per key: the cached value plus the
// instant it was written, since patrickmn/go-cache itself only tracks
// expiration, not write time.
type entry struct {
	Val    interface{}
	Stored time.Time
}

// MemoryConfig controls a Memory backend instance.
type MemoryConfig struct {
	// Name is used in logs and stats.
	Name string

	Logger ctxd.Logger
	Stats  stats.Tracker

	// TimeToLive is the default ttl used when Set is called with ttl<=0,
	// default 5m.
	TimeToLive time.Duration

	// CleanupInterval is how often each segment's expired entries are
	// swept, default 10m.
	CleanupInterval time.Duration

	// ExpirationJitter is a fraction of ttl to randomize, default 0.1.
	// Use -1 to disable. Entry ttl is randomly altered within
	// ±(ExpirationJitter * ttl / 2), to avoid synchronized mass expiry.
	ExpirationJitter float64

	// ItemsCountReportInterval is the items-count metric report interval,
	// default 1m.
	ItemsCountReportInterval time.Duration

	// HeapInUseSoftLimit sets a heap-in-use threshold above which the
	// most-expired entries across all segments are evicted.
	HeapInUseSoftLimit uint64

	// HeapInUseEvictFraction is the fraction of total items evicted when
	// HeapInUseSoftLimit is crossed, default 0.1.
	HeapInUseEvictFraction float64
}

var _ Backend = &Memory{}

// Memory is the default in-process Backend implementation. Each segment
// gets its own patrickmn/go-cache instance so segments expire and clean up
// independently.
type Memory struct {
	mu       sync.RWMutex
	segments map[string]*pcache.Cache

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
	closed chan struct{}
}

// NewMemory creates a Memory backend with optional configuration.
func NewMemory(cfg ...MemoryConfig) *Memory {
	config := MemoryConfig{}
	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.CleanupInterval == 0 {
		config.CleanupInterval = 10 * time.Minute
	}

	if config.ExpirationJitter == 0 {
		config.ExpirationJitter = 0.1
	}

	if config.ItemsCountReportInterval == 0 {
		config.ItemsCountReportInterval = time.Minute
	}

	log := config.Logger
	if log == nil {
		log = ctxd.NoOpLogger{}
	}

	stat := config.Stats
	if stat == nil {
		stat = stats.NoOp{}
	}

	m := &Memory{
		segments: map[string]*pcache.Cache{},
		config:   config,
		log:      log,
		stat:     stat,
		closed:   make(chan struct{}),
	}

	go m.reportItemsCount()

	return m
}

func (m *Memory) segmentCache(segment string) *pcache.Cache {
	m.mu.RLock()
	c, ok := m.segments[segment]
	m.mu.RUnlock()

	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok = m.segments[segment]; ok {
		return c
	}

	c = pcache.New(m.config.TimeToLive, m.config.CleanupInterval)
	m.segments[segment] = c

	return c
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, addr Address) (CachedEntry, error) {
	if SkipRead(ctx) {
		return CachedEntry{}, ErrCacheMiss
	}

	c := m.segmentCache(addr.Segment)

	v, exp, ok := c.GetWithExpiration(addr.ID)
	if !ok {
		m.log.Debug(ctx, "cache miss", "name", m.config.Name, "segment", addr.Segment, "id", addr.ID)
		m.stat.Add(ctx, MetricMemoryMiss, 1, "name", m.config.Name)

		return CachedEntry{}, ErrCacheMiss
	}

	e, _ := v.(entry)

	var remaining time.Duration
	if !exp.IsZero() {
		remaining = time.Until(exp)
	}

	m.log.Debug(ctx, "cache hit", "name", m.config.Name, "segment", addr.Segment, "id", addr.ID)
	m.stat.Add(ctx, MetricMemoryHit, 1, "name", m.config.Name)

	return CachedEntry{Item: e.Val, Stored: e.Stored, TTL: remaining}, nil
}

// Set implements Backend.
func (m *Memory) Set(ctx context.Context, addr Address, value interface{}, ttlIn time.Duration) error {
	c := m.segmentCache(addr.Segment)

	usedTTL := SetTTLOverride(ctx)
	if usedTTL <= 0 {
		usedTTL = ttlIn
	}

	if usedTTL <= 0 {
		usedTTL = m.config.TimeToLive
	}

	if m.config.ExpirationJitter > 0 {
		usedTTL += time.Duration(float64(usedTTL) * m.config.ExpirationJitter * (rand.Float64() - 0.5))
	}

	c.Set(addr.ID, entry{Val: value, Stored: time.Now()}, usedTTL)

	m.log.Debug(ctx, "wrote to cache", "name", m.config.Name, "segment", addr.Segment, "id", addr.ID, "ttl", usedTTL)
	m.stat.Add(ctx, MetricMemoryWrite, 1, "name", m.config.Name)

	return nil
}

// Drop implements Backend.
func (m *Memory) Drop(ctx context.Context, addr Address) error {
	c := m.segmentCache(addr.Segment)
	c.Delete(addr.ID)

	m.log.Debug(ctx, "dropped cache entry", "name", m.config.Name, "segment", addr.Segment, "id", addr.ID)

	return nil
}

// ValidateSegmentName implements Backend. Every string, including the
// empty one (an unsegmented Policy), addresses its own patrickmn/go-cache
// instance.
func (m *Memory) ValidateSegmentName(name string) error {
	return nil
}

// IsReady implements Backend.
func (m *Memory) IsReady(ctx context.Context) bool {
	return true
}

// Close stops Memory's background reporting. Segment janitors keep
// running, owned by patrickmn/go-cache itself.
func (m *Memory) Close() {
	close(m.closed)
}

func (m *Memory) reportItemsCount() {
	for {
		select {
		case <-time.After(m.config.ItemsCountReportInterval):
		case <-m.closed:
			return
		}

		count := 0

		m.mu.RLock()
		for _, c := range m.segments {
			count += c.ItemCount()
		}
		m.mu.RUnlock()

		m.log.Debug(context.Background(), "cache items count", "name", m.config.Name, "count", count)
		m.stat.Set(context.Background(), MetricMemoryItems, float64(count), "name", m.config.Name)

		m.evictHeapInUse()
	}
}
