package policy

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bool64/stats"
	"github.com/stretchr/testify/assert"
)

func TestMemory_getSetDrop(t *testing.T) {
	ctx := context.Background()
	st := &stats.TrackerMock{}

	m := NewMemory(MemoryConfig{
		Name:             "test",
		Stats:            st,
		ExpirationJitter: -1,
	})

	addr := Address{Segment: "seg", ID: "key"}

	_, err := m.Get(ctx, addr)
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, m.Set(ctx, addr, 123, time.Minute))

	entry, err := m.Get(ctx, addr)
	assert.NoError(t, err)
	assert.Equal(t, 123, entry.Item)
	assert.False(t, entry.Stored.IsZero())

	assert.NoError(t, m.Drop(ctx, addr))

	_, err = m.Get(ctx, addr)
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Equal(t, 2, st.Int(MetricMemoryMiss))
	assert.Equal(t, 1, st.Int(MetricMemoryHit))
	assert.Equal(t, 1, st.Int(MetricMemoryWrite))
}

func TestMemory_segmentsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	assert.NoError(t, m.Set(ctx, Address{Segment: "a", ID: "key"}, "in-a", time.Minute))

	_, err := m.Get(ctx, Address{Segment: "b", ID: "key"})
	assert.ErrorIs(t, err, ErrCacheMiss)

	entry, err := m.Get(ctx, Address{Segment: "a", ID: "key"})
	assert.NoError(t, err)
	assert.Equal(t, "in-a", entry.Item)
}

func TestMemory_defaultTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{TimeToLive: time.Millisecond, ExpirationJitter: -1})

	addr := Address{Segment: "seg", ID: "key"}
	assert.NoError(t, m.Set(ctx, addr, "v", 0))

	time.Sleep(5 * time.Millisecond)

	_, err := m.Get(ctx, addr)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_setTTLOverrideFromContext(t *testing.T) {
	ctx := WithSetTTL(context.Background(), time.Millisecond)
	m := NewMemory(MemoryConfig{ExpirationJitter: -1})

	addr := Address{Segment: "seg", ID: "key"}
	assert.NoError(t, m.Set(ctx, addr, "v", 0))

	time.Sleep(5 * time.Millisecond)

	_, err := m.Get(context.Background(), addr)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_skipRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	addr := Address{Segment: "seg", ID: "key"}
	assert.NoError(t, m.Set(ctx, addr, "v", time.Minute))

	_, err := m.Get(WithSkipRead(ctx), addr)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_validateSegmentName(t *testing.T) {
	m := NewMemory()
	assert.NoError(t, m.ValidateSegmentName(""))
	assert.NoError(t, m.ValidateSegmentName("seg"))
}

func TestMemory_isReady(t *testing.T) {
	m := NewMemory()
	assert.True(t, m.IsReady(context.Background()))
}

func TestMemory_concurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	done := make(chan struct{})

	for i := 0; i < 200; i++ {
		i := i

		go func() {
			addr := Address{Segment: "seg", ID: strconv.Itoa(i % 20)}
			assert.NoError(t, m.Set(ctx, addr, i, time.Minute))
			done <- struct{}{}
		}()
	}

	for i := 0; i < 200; i++ {
		<-done
	}
}
