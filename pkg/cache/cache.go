// Package cache provides the distributed cache abstraction used by the
// resolution layer.
//
// The package exposes a byte-level Store interface with two backends:
//   - Redis (production): shared across all consumer instances
//   - Memory: single-process TTL map used in tests and local development
//
// On top of Store, Typed[V] adds JSON serialization, a per-kind key prefix
// and a per-kind TTL, giving each entity kind its own cache namespace with
// deterministic keys and independent staleness bounds.
//
// The cache owns no authoritative data. Values are time-bounded copies of
// relational-store rows; explicit Delete calls bound staleness after
// configuration edits, TTL expiry bounds it otherwise. Concurrent misses for
// one key are tolerated: each miss recomputes the same value and last writer
// wins.
package cache

import (
	"context"
	"time"
)

// Store is a byte-level cache with per-entry TTL. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get retrieves the value for key. The second return is false on miss.
	// An error indicates the cache itself failed, not a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL. A zero TTL stores
	// without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Statistics tracks hit/miss/set/delete counts for one typed namespace.
type Statistics struct {
	hits    int64
	misses  int64
	sets    int64
	deletes int64
}
