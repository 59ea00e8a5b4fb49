// Package store defines the durable-tier byte store consumed by renderq.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Put for a key (no prepended or
// appended metadata, no re-encoding, no mutation). If a store performs internal
// transforms (e.g. compression), they MUST be fully reversed so that the bytes
// returned by Get are identical to the bytes provided to Put.
//
// The keyspace "deriv:<ns>:" is owned by renderq. External code MUST NOT write
// values under this prefix; foreign writes are treated as corruption by strict
// record validation and deleted on read.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with optional TTLs. Must be safe for
// concurrent use up to the engine's worker count. No ordering guarantee is
// required between a Put and a subsequent Get from another process beyond
// "eventually visible".
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value with the given TTL (<= 0 means no expiry where the
	// backend supports it). Returns ok=false when the store rejected the
	// write under pressure.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
