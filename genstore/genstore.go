// Package genstore tracks the per-key generation counters that make
// invalidation and staleness detection possible. A key's generation starts at
// 0 and moves only on invalidation; every queued request, in-flight render
// and cached derivative is stamped with the generation observed at creation,
// and anything stamped older than the current value is discarded.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live. Use LocalGenStore (default) for
// single-process catalogs, or RedisGenStore when several processes share one
// durable tier and must agree on what is stale.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
