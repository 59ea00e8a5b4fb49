package renderq

import (
	"context"
	"time"

	cd "github.com/unkn0wn-root/renderq/codec"
	gen "github.com/unkn0wn-root/renderq/genstore"
	st "github.com/unkn0wn-root/renderq/store"
)

// Engine is the public surface of the derivative engine: a priority-scheduled
// generation pipeline in front of a generation-validated two-tier cache.
//
// All methods are safe for concurrent use. Request returns immediately with
// a handle; generation work happens on a bounded worker pool and results are
// published through the handle.
type Engine interface {
	// Request asks for the derivative of assetID at class. A valid cached
	// result resolves the returned handle immediately; otherwise the request
	// is enqueued (deduplicated by key: concurrent requests for the same key
	// share one handle and one render, and the queued priority is raised to
	// the strongest of the two). The byte provider of the first request for
	// a key wins.
	Request(ctx context.Context, assetID string, class SizeClass, prio Priority, provider ByteProvider) (*Outcome, error)

	// UpdatePriority reorders a queued request. No-op if the key is not
	// queued (already in-flight, cached, or unknown).
	UpdatePriority(assetID string, class SizeClass, prio Priority)

	// Cancel removes a queued request or marks an in-flight one for discard.
	// In-flight work is not preempted; its eventual result is dropped the
	// same way a stale-generation result is. No error if already resolved.
	Cancel(assetID string, class SizeClass)

	// CancelAll cancels every queued and in-flight request.
	CancelAll()

	// Invalidate bumps the key's generation, clears both cache tiers and
	// cancels any queued or in-flight request stamped with the old
	// generation. Call it when the source content changed (e.g. an edit was
	// applied) and prior derivatives must not be served again.
	Invalidate(assetID string, class SizeClass) error

	// Stats returns a point-in-time snapshot of engine counters.
	Stats() Stats

	// Close cancels everything, releases fast-tier resources, stops
	// accepting new requests and closes the stores. ctx bounds the wait for
	// in-flight renders to drain.
	Close(ctx context.Context) error
}

// Options tune the engine. Only Namespace and Renderer are required; others
// have sensible defaults.
type Options struct {
	// Required
	Namespace string // logical namespace isolating storage keys, e.g. "catalog-2024"
	Renderer  Renderer

	// Durable tier. Nil disables the durable tier (fast tier only).
	Store st.Store
	// Codec for durable records; nil => CBOR.
	Codec cd.Codec[Derivative]
	// DurableTTL expires durable records where the store supports it; 0 => none.
	DurableTTL time.Duration

	// Generation registry; nil => in-process LocalGenStore.
	GenStore gen.GenStore
	// LocalGenStore pruning knobs (ignored with a custom GenStore).
	CleanupInterval time.Duration // 0 => 1h
	GenRetention    time.Duration // 0 => 30d

	// Workers is the number of concurrent render slots.
	// 0 => NumCPU clamped to [4, 8].
	Workers int
	// QueueCapacity bounds pending requests; on overflow the lowest-priority,
	// oldest entry is evicted and its handle resolves cancelled. 0 => 256.
	QueueCapacity int
	// RenderTimeout bounds one render; on expiry the slot is freed and the
	// outcome resolves cancelled (ErrRenderTimeout). 0 => no timeout.
	RenderTimeout time.Duration

	// Fast-tier budgets per size class; classes not listed use DefaultBudget.
	// Payload sizes differ by orders of magnitude between classes, so budgets
	// are configured independently (many small thumbnails, few large previews).
	FastTier      map[SizeClass]TierBudget
	DefaultBudget TierBudget // zero => 512 items, 256 MiB

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// New builds and starts an Engine.
func New(opts Options) (Engine, error) {
	return newEngine(opts)
}
