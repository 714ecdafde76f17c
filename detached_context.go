package policy

import (
	"context"
	"time"
)

// detachedContext strips cancellation and deadline from ctx while keeping
// its values. Background generation must survive the cancellation of the
// caller that happened to trigger it.
type detachedContext struct {
	ctx context.Context
}

func (dctx detachedContext) Deadline() (deadline time.Time, ok bool) {
	return time.Time{}, false
}

func (dctx detachedContext) Done() <-chan struct{} {
	return nil
}

func (dctx detachedContext) Err() error {
	return nil
}

func (dctx detachedContext) Value(key interface{}) interface{} {
	return dctx.ctx.Value(key)
}
