package policy

import (
	"context"
	"time"
)

type (
	skipReadCtxKey struct{}
	writeTTLCtxKey struct{}
)

// WithSetTTL returns a context that overrides the TTL used by the next
// Backend.Set call made while it is active.
func WithSetTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, writeTTLCtxKey{}, ttl)
}

// SetTTLOverride returns the TTL override carried by ctx, or zero if none.
func SetTTLOverride(ctx context.Context) time.Duration {
	d, _ := ctx.Value(writeTTLCtxKey{}).(time.Duration)
	return d
}

// WithSkipRead returns a context in which a backend read is ignored.
//
// A Backend.Get consulted with such a context should always report
// ErrCacheMiss, discarding any cached value.
func WithSkipRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipReadCtxKey{}, true)
}

// SkipRead returns true if a backend read should be ignored per ctx.
func SkipRead(ctx context.Context) bool {
	_, ok := ctx.Value(skipReadCtxKey{}).(bool)
	return ok
}
