package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvalidator_Invalidate(t *testing.T) {
	ctx := context.Background()

	p1, err := NewPolicy(Config{Name: "p1", Backend: NewMemory()})
	assert.NoError(t, err)

	p2, err := NewPolicy(Config{Name: "p2", Backend: NewMemory()})
	assert.NoError(t, err)

	i := &Invalidator{}
	assert.Error(t, i.Invalidate())

	assert.NoError(t, p1.Set(ctx, "key", 1, time.Hour))
	assert.NoError(t, p2.Set(ctx, "key", 2, time.Hour))

	i.AddPolicy(ctx, p1, "key")
	i.AddPolicy(ctx, p2, "key")

	v, _, _, err := p1.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	assert.NoError(t, i.Invalidate())

	v, _, _, err = p1.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, _, _, err = p2.Get(ctx, "key")
	assert.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, i.Invalidate()) // already invalidated
}

func TestInvalidator_Invalidate_skipInterval(t *testing.T) {
	i := &Invalidator{SkipInterval: time.Hour}
	i.Callbacks = append(i.Callbacks, func() {})

	assert.NoError(t, i.Invalidate())
	assert.Error(t, i.Invalidate())
}
