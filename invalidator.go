package policy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Invalidator is a registry of cache expiration triggers, letting a caller
// mass-drop several policies/keys at once with flood protection.
type Invalidator struct {
	sync.Mutex

	// SkipInterval is the minimal duration between two invalidations
	// (flood protection), default 15s.
	SkipInterval time.Duration

	// Callbacks are invoked, in order, on every successful Invalidate.
	Callbacks []func()

	lastRun time.Time
}

// AddPolicy registers a callback that drops every one of keys from p,
// logging (via p's own logger) any error encountered along the way.
func (i *Invalidator) AddPolicy(ctx context.Context, p *Policy, keys ...interface{}) {
	i.Callbacks = append(i.Callbacks, func() {
		for _, key := range keys {
			if err := p.Drop(ctx, key); err != nil {
				p.log.Warn(ctx, "invalidator failed to drop key", "name", p.name, "error", err)
			}
		}
	})
}

// Invalidate runs every registered callback, unless SkipInterval hasn't
// passed since the last successful run.
func (i *Invalidator) Invalidate() error {
	if i.Callbacks == nil {
		return ErrNothingToInvalidate
	}

	i.Lock()
	defer i.Unlock()

	if i.SkipInterval == 0 {
		i.SkipInterval = 15 * time.Second
	}

	if time.Since(i.lastRun) < i.SkipInterval {
		return fmt.Errorf("%w at %s, %s did not pass",
			ErrAlreadyInvalidated, i.lastRun.String(), i.SkipInterval.String())
	}

	i.lastRun = time.Now()
	for _, cb := range i.Callbacks {
		cb()
	}

	return nil
}
