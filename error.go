package policy

// SentinelError is an error.
type SentinelError string

const (
	// ErrCacheMiss indicates the backend has no entry for the requested address.
	ErrCacheMiss = SentinelError("cache miss")

	// ErrInvalidKey indicates a key from which no id could be extracted.
	ErrInvalidKey = SentinelError("invalid key")

	// ErrInvalidRule indicates a rule failed compilation.
	ErrInvalidRule = SentinelError("invalid rule")

	// ErrGenerateTimeout indicates a generation exceeded its GenerateTimeout
	// with no cached value to fall back to.
	ErrGenerateTimeout = SentinelError("server timeout")

	// ErrNoBackend indicates an operation that requires a backend was
	// invoked on a Policy configured without one.
	ErrNoBackend = SentinelError("no cache backend configured")

	// ErrNothingToInvalidate indicates no callbacks were registered on an Invalidator.
	ErrNothingToInvalidate = SentinelError("nothing to invalidate")

	// ErrAlreadyInvalidated indicates a recent invalidation is still within SkipInterval.
	ErrAlreadyInvalidated = SentinelError("already invalidated")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}
