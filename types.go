package renderq

import (
	"context"
)

// SizeClass names an output size/quality tier. The engine treats it as an
// opaque label; it only affects storage keys and fast-tier budgets.
type SizeClass string

// Common size classes. Callers may define their own.
const (
	ClassThumbnail SizeClass = "thumb"
	ClassPreview   SizeClass = "preview"
	ClassPreview2x SizeClass = "preview2x"
)

// Key identifies one cacheable derivative: a rendering of one asset at one
// size class. Immutable once created.
type Key struct {
	AssetID string
	Class   SizeClass
}

func (k Key) String() string { return k.AssetID + "@" + string(k.Class) }

// Priority orders pending requests. Lower values dequeue first.
type Priority int

const (
	PriorityVisible     Priority = iota // on screen right now
	PriorityNearVisible                 // just outside the viewport
	PriorityPreload                     // likely to scroll into view
	PriorityBackground                  // bulk/warmup work
)

// ByteProvider yields the source bytes for an asset on demand. The engine
// never caches raw source bytes, only derived outputs.
type ByteProvider func(ctx context.Context) ([]byte, error)

// Resource is an externally visible handle attached to a rendered derivative
// (e.g. a display-ready texture). The fast tier is the sole owner of cached
// resources: Release is called exactly once, on eviction, invalidation or
// teardown. Callers receive borrowed references and must never release them.
type Resource interface {
	Release()
}

// Derivative is a rendered, size-specific artifact. All fields are
// codec-friendly; durable-tier records are an encoded Derivative.
type Derivative struct {
	Data      []byte `cbor:"1,keyasint" json:"data" msgpack:"data"`
	SizeBytes int64  `cbor:"2,keyasint" json:"size_bytes" msgpack:"size_bytes"`
	Width     int    `cbor:"3,keyasint" json:"width,omitempty" msgpack:"width,omitempty"`
	Height    int    `cbor:"4,keyasint" json:"height,omitempty" msgpack:"height,omitempty"`
	Format    string `cbor:"5,keyasint" json:"format,omitempty" msgpack:"format,omitempty"`
}

// RenderResult is what a Renderer returns: the derivative plus an optional
// resource handle that the fast tier will own once the result is published.
type RenderResult struct {
	Derivative Derivative
	Resource   Resource
}

// Renderer produces derivatives from source bytes. Implementations must be
// safe for concurrent use up to the engine's worker count and should honor
// ctx cancellation; a slow renderer that ignores ctx only delays teardown.
type Renderer interface {
	Render(ctx context.Context, provider ByteProvider, class SizeClass) (RenderResult, error)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(ctx context.Context, provider ByteProvider, class SizeClass) (RenderResult, error)

func (f RenderFunc) Render(ctx context.Context, provider ByteProvider, class SizeClass) (RenderResult, error) {
	return f(ctx, provider, class)
}

// TierBudget bounds one fast-tier shard. Zero fields mean "unlimited" for
// that dimension; a fully zero budget disables fast-tier caching for the
// size class.
type TierBudget struct {
	MaxItems int
	MaxBytes int64
}

func (b TierBudget) zero() bool { return b.MaxItems == 0 && b.MaxBytes == 0 }

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	QueueDepth     int
	InFlight       int
	FastItems      int
	FastBytes      int64
	FastHits       uint64
	DurableHits    uint64
	Rendered       uint64
	RenderFailures uint64
	StaleDrops     uint64
	QueueEvictions uint64
	FastEvictions  uint64
}
