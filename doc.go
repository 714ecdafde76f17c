// Package policy implements a cache policy engine: a coordination layer
// sitting between callers and a pluggable segment-addressed cache backend.
//
// Features:
//
//  - Rule compilation with cross-field validation and normalized defaults.
//  - Single-flight coalescing of concurrent Get calls for the same id.
//  - Stale-while-revalidate serving with a race between a stale fallback
//    and a fresh generation.
//  - Separate relative (expiresIn) and daily wall-clock (expiresAt) TTLs.
//  - Pending-generate suppression to avoid duplicate concurrent generation.
//  - Allows logging, stats collection.
//  - Propagates context to allow better control of backend and generator.
//  - Allows mass expiration and removal (drop cache) via Invalidator.
//  - Expiration jitter on the default backend to avoid synchronized expiry.
package policy
