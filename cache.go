package renderq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/renderq/codec"
	"github.com/unkn0wn-root/renderq/internal/wire"
	"github.com/unkn0wn-root/renderq/store"
)

// tierCache is the two-tier cache: bounded in-memory LRU shards (one per
// size class) in front of an unbounded durable byte store.
//
// Ownership: fast-tier mutations (get/put/delete/close) happen only on the
// engine run loop, so the shards need no locking. Durable-tier reads and
// writes run on worker goroutines and touch nothing but the Store, which is
// concurrency-safe by contract. Counters are atomics so Stats can read them
// from any goroutine.
type tierCache struct {
	ns        string
	durable   store.Store // nil => fast tier only
	codec     codec.Codec[Derivative]
	ttl       time.Duration
	budgets   map[SizeClass]TierBudget
	defBudget TierBudget

	tiers map[SizeClass]*lruTier

	log   Logger
	hooks Hooks

	fastHits      atomic.Uint64
	durableHits   atomic.Uint64
	fastEvictions atomic.Uint64
	itemsGauge    atomic.Int64
	bytesGauge    atomic.Int64
}

func newTierCache(ns string, durable store.Store, cd codec.Codec[Derivative],
	ttl time.Duration, budgets map[SizeClass]TierBudget, def TierBudget,
	log Logger, hooks Hooks) *tierCache {
	return &tierCache{
		ns:        ns,
		durable:   durable,
		codec:     cd,
		ttl:       ttl,
		budgets:   budgets,
		defBudget: def,
		tiers:     make(map[SizeClass]*lruTier),
		log:       log,
		hooks:     hooks,
	}
}

// storageKey isolates entries by namespace and size class so several
// catalogs can share one durable store.
func (c *tierCache) storageKey(k Key) string {
	return "deriv:" + c.ns + ":" + string(k.Class) + ":" + k.AssetID
}

func (c *tierCache) tier(class SizeClass) *lruTier {
	t, ok := c.tiers[class]
	if !ok {
		budget, has := c.budgets[class]
		if !has {
			budget = c.defBudget
		}
		t = newLRUTier(budget, func(e *fastEntry) {
			c.fastEvictions.Add(1)
			c.hooks.FastTierEvicted(e.key, e.size)
		})
		c.tiers[class] = t
	}
	return t
}

// getFast returns the fast-tier entry for key, updating recency. Run loop only.
func (c *tierCache) getFast(key Key) (*fastEntry, bool) {
	e, ok := c.tier(key.Class).Get(key)
	if ok {
		c.fastHits.Add(1)
	}
	return e, ok
}

// putFast installs a freshly validated result into the fast tier, evicting
// under budget pressure. Run loop only.
func (c *tierCache) putFast(key Key, gen uint64, d Derivative, res Resource) {
	size := d.SizeBytes
	if size == 0 {
		size = int64(len(d.Data))
	}
	e := &fastEntry{key: key, gen: gen, deriv: d, res: res, size: size}
	if !c.tier(key.Class).Put(e) {
		c.log.Debug("fast tier rejected entry (oversized or disabled class)", Fields{"key": key.String(), "size": size})
	}
}

// deleteFast drops the fast-tier entry and releases its resource. Run loop only.
func (c *tierCache) deleteFast(key Key) bool {
	return c.tier(key.Class).Delete(key)
}

// getDurable fetches and validates the durable record for key. A record
// whose stamped generation differs from wantGen is stale and deleted, as is
// anything corrupt or undecodable (self-heal). Safe on worker goroutines.
func (c *tierCache) getDurable(ctx context.Context, key Key, wantGen uint64) (Derivative, bool) {
	if c.durable == nil {
		return Derivative{}, false
	}
	sk := c.storageKey(key)
	raw, ok, err := c.durable.Get(ctx, sk)
	if err != nil {
		c.log.Warn("durable read failed", Fields{"key": key.String(), "err": err})
		return Derivative{}, false
	}
	if !ok {
		return Derivative{}, false
	}
	gen, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		c.selfHeal(ctx, sk, "corrupt")
		return Derivative{}, false
	}
	if gen != wantGen {
		c.selfHeal(ctx, sk, "gen_mismatch")
		return Derivative{}, false
	}
	d, err := c.codec.Decode(payload)
	if err != nil {
		c.selfHeal(ctx, sk, "decode")
		return Derivative{}, false
	}
	c.durableHits.Add(1)
	return d, true
}

// putDurable writes a record best-effort: failures are logged and hooked,
// never surfaced - the fast-tier copy remains authoritative for the session.
// Safe on worker goroutines.
func (c *tierCache) putDurable(ctx context.Context, key Key, gen uint64, d Derivative) {
	if c.durable == nil {
		return
	}
	payload, err := c.codec.Encode(d)
	if err != nil {
		c.log.Warn("durable encode failed", Fields{"key": key.String(), "err": err})
		c.hooks.DurableWriteFailed(key, err)
		return
	}
	sk := c.storageKey(key)
	ok, err := c.durable.Put(ctx, sk, wire.EncodeRecord(gen, payload), c.ttl)
	if err != nil {
		c.log.Warn("durable write failed", Fields{"key": key.String(), "err": err})
		c.hooks.DurableWriteFailed(key, err)
		return
	}
	if !ok {
		c.log.Debug("durable write rejected by store (pressure)", Fields{"key": key.String()})
	}
}

// deleteDurable removes the durable record (best-effort).
func (c *tierCache) deleteDurable(ctx context.Context, key Key) error {
	if c.durable == nil {
		return nil
	}
	return c.durable.Del(ctx, c.storageKey(key))
}

// delete clears both tiers for key. Eviction of a fast entry elsewhere never
// touches the durable copy; this is the one path that removes both.
func (c *tierCache) delete(ctx context.Context, key Key) error {
	c.deleteFast(key)
	return c.deleteDurable(ctx, key)
}

func (c *tierCache) selfHeal(ctx context.Context, storageKey, reason string) {
	_ = c.durable.Del(ctx, storageKey)
	c.hooks.SelfHealDurable(storageKey, reason)
}

// syncGauges publishes fast-tier size counters for Stats. Run loop only.
func (c *tierCache) syncGauges() {
	var items int
	var bytes int64
	for _, t := range c.tiers {
		items += t.Len()
		bytes += t.Bytes()
	}
	c.itemsGauge.Store(int64(items))
	c.bytesGauge.Store(bytes)
}

// clearFast releases every fast-tier resource. Run loop only.
func (c *tierCache) clearFast() {
	for _, t := range c.tiers {
		t.Clear()
	}
}

// close shuts the durable store down once workers have drained.
func (c *tierCache) close(ctx context.Context) error {
	if c.durable != nil {
		return c.durable.Close(ctx)
	}
	return nil
}
