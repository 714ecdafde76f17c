package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpBackend(t *testing.T) {
	var b NoOpBackend

	ctx := context.Background()

	_, err := b.Get(ctx, Address{Segment: "s", ID: "k"})
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, b.Set(ctx, Address{Segment: "s", ID: "k"}, 1, time.Minute))
	assert.NoError(t, b.Drop(ctx, Address{Segment: "s", ID: "k"}))
	assert.NoError(t, b.ValidateSegmentName(""))
	assert.True(t, b.IsReady(ctx))
}

func TestCachedEntry_IsStale(t *testing.T) {
	now := time.Now()
	entry := CachedEntry{Stored: now.Add(-time.Minute), TTL: 10 * time.Minute}

	assert.False(t, entry.IsStale(Rule{}, now))

	rule := Rule{StaleIn: 30 * time.Second}
	assert.True(t, entry.IsStale(rule, now))

	rule = Rule{StaleIn: 2 * time.Minute}
	assert.False(t, entry.IsStale(rule, now))

	rule = Rule{StaleInFunc: func(stored time.Time, ttl time.Duration) time.Duration {
		return 30 * time.Second
	}}
	assert.True(t, entry.IsStale(rule, now))
}
