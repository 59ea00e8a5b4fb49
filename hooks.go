package renderq

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking - the engine calls them on
// hot paths (wrap with hooks/async if your sink can stall).
type Hooks interface {
	// A finished render was discarded because its generation no longer
	// matched the registry (invalidation or cancellation won the race).
	StaleResultDropped(key Key, taskGen, currentGen uint64)

	// The renderer reported an error for key.
	RenderFailed(key Key, err error)

	// A render exceeded Options.RenderTimeout; the slot was freed and the
	// eventual result will be discarded.
	RenderTimeout(key Key, elapsed time.Duration)

	// A full queue evicted its lowest-priority, oldest entry to admit a
	// higher-priority one. inserted is false when the incoming request was
	// itself the lowest and was rejected instead.
	QueueOverflow(evicted Key, prio Priority, inserted bool)

	// The fast tier evicted its least-recently-used entry under budget
	// pressure (the durable copy, if any, is untouched).
	FastTierEvicted(key Key, sizeBytes int64)

	// A best-effort durable write or delete failed. The fast-tier copy
	// remains authoritative for the session.
	DurableWriteFailed(key Key, err error)

	// A durable record was deleted on read.
	// reason is one of "corrupt", "gen_mismatch", "decode".
	SelfHealDurable(storageKey, reason string)
}

// NopHooks is the default no-op implementation.
type NopHooks struct{}

func (NopHooks) StaleResultDropped(Key, uint64, uint64) {}
func (NopHooks) RenderFailed(Key, error)                {}
func (NopHooks) RenderTimeout(Key, time.Duration)       {}
func (NopHooks) QueueOverflow(Key, Priority, bool)      {}
func (NopHooks) FastTierEvicted(Key, int64)             {}
func (NopHooks) DurableWriteFailed(Key, error)          {}
func (NopHooks) SelfHealDurable(string, string)         {}
