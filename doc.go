// Package renderq implements a priority-scheduled derivative generation and
// caching engine for large image catalogs: given a stream of requests for
// size-specific renderings of source images (thumbnail, preview, preview-2x),
// it produces, caches and serves them with bounded memory, bounded
// concurrency, and correctness under rapid request churn.
//
// Components:
//   - genstore.GenStore: per-key monotonic generation counters. Invalidation
//     bumps the generation; anything stamped older is stale and discarded.
//   - request queue: priority-then-FIFO heap with mutable priorities and a
//     capacity bound (lowest-priority, oldest entry evicted on overflow).
//   - dispatcher: a fixed pool of render slots fed by a single coordinating
//     goroutine; completions are validated against the registry before they
//     are published, so a superseded render can never repopulate the cache.
//   - two-tier cache: strict-LRU in-memory shards (one budget per size
//     class, resources released exactly once on eviction) over an unbounded
//     durable byte store (store.Store: Redis, S3/MinIO, BigCache, Ristretto).
//   - codec.Codec: (de)serializes durable derivative records (CBOR default).
//
// Keys:
//
//	deriv:<ns>:<class>:<asset>  - durable derivative records
//	gen:<ns>:<storage key>      - generation counters (Redis genstore)
//
// Typical use:
//
//	eng, _ := renderq.New(renderq.Options{
//	    Namespace: "catalog",
//	    Renderer:  myRenderer,
//	    Store:     redisStore,
//	})
//	out, _ := eng.Request(ctx, assetID, renderq.ClassThumbnail,
//	    renderq.PriorityVisible, readSourceBytes)
//	deriv, err := out.Wait(ctx)
//
// Scrolling a grid, callers keep issuing Request/UpdatePriority/Cancel as
// items enter and leave the viewport; after an edit they call Invalidate and
// re-request.
package renderq
