// Package tagcache provides tag-aware cache backends and the invalidation
// service that actions signal after a successful round trip.
//
// Every stored Entry may carry tags. Invalidating a tag marks all entries
// carrying it as stale (they are removed), so the next read recomputes them.
// Backends:
//
//   - MemoryCache: in-process map with a tag index and size bound.
//   - NATSInvalidator: wraps a local Store and broadcasts invalidations to
//     other processes over a NATS subject, applying theirs in turn.
//   - NoOpCache: stores nothing, invalidates nothing.
//
// Use NewCacheFromConfig to construct one from settings.
//
// MemoryCache and NATSInvalidator count invalidations per tag (see
// Versioned). A writer that reads the version before computing an entry and
// stores it with SetIfVersion never resurrects data invalidated meanwhile.
package tagcache
