package policy

import (
	"context"
	"runtime"
	"sort"
	"time"
)

// evictHeapInUse drops the most-expired entries across all segments when
// process heap usage crosses HeapInUseSoftLimit. patrickmn/go-cache has no
// heap-aware eviction of its own, so Memory does this across every
// segment's Items() snapshot.
func (m *Memory) evictHeapInUse() {
	if m.config.HeapInUseSoftLimit == 0 {
		return
	}

	runtime.GC()

	var stats runtime.MemStats

	runtime.ReadMemStats(&stats)

	if stats.HeapInuse < m.config.HeapInUseSoftLimit {
		return
	}

	type candidate struct {
		segment string
		key     string
		expires time.Time
	}

	var candidates []candidate

	m.mu.RLock()
	for segment, c := range m.segments {
		for key, item := range c.Items() {
			var expires time.Time
			if item.Expiration > 0 {
				expires = time.Unix(0, item.Expiration)
			}

			candidates = append(candidates, candidate{segment: segment, key: key, expires: expires})
		}
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expires.Before(candidates[j].expires)
	})

	evictFraction := m.config.HeapInUseEvictFraction
	if evictFraction == 0 {
		evictFraction = 0.1
	}

	evictItems := int(float64(len(candidates)) * evictFraction)

	m.stat.Add(context.Background(), MetricMemoryEvict, float64(evictItems), "name", m.config.Name)

	for i := 0; i < evictItems; i++ {
		m.mu.RLock()
		c := m.segments[candidates[i].segment]
		m.mu.RUnlock()

		if c != nil {
			c.Delete(candidates[i].key)
		}
	}
}
