package renderq

import (
	"container/list"
	"time"
)

// fastEntry is one fast-tier slot. The tier owns res: release happens
// exactly once, on eviction, replacement, delete or teardown.
type fastEntry struct {
	key          Key
	gen          uint64
	deriv        Derivative
	res          Resource
	size         int64
	lastAccessed time.Time
}

// release frees the attached resource at most once.
func (e *fastEntry) release() {
	if e.res != nil {
		e.res.Release()
		e.res = nil
	}
}

// evictFunc observes evictions (not explicit deletes or replacement).
type evictFunc func(e *fastEntry)

// lruTier is a strict least-recently-used shard for one size class with
// independent item and byte budgets.
//
// Not safe for concurrent use; the engine run loop is the single owner.
// Hand-built on container/list because eviction must be synchronous and must
// run the resource release hook exactly once - cost-based stores with async
// or callback-free eviction cannot give that guarantee.
type lruTier struct {
	budget  TierBudget
	ll      *list.List // front = most recent
	byKey   map[Key]*list.Element
	bytes   int64
	onEvict evictFunc
}

func newLRUTier(budget TierBudget, onEvict evictFunc) *lruTier {
	return &lruTier{
		budget:  budget,
		ll:      list.New(),
		byKey:   make(map[Key]*list.Element),
		onEvict: onEvict,
	}
}

func (t *lruTier) Len() int     { return t.ll.Len() }
func (t *lruTier) Bytes() int64 { return t.bytes }

// Get returns the entry for key and marks it most recently used.
func (t *lruTier) Get(key Key) (*fastEntry, bool) {
	el, ok := t.byKey[key]
	if !ok {
		return nil, false
	}
	t.ll.MoveToFront(el)
	e := el.Value.(*fastEntry)
	e.lastAccessed = time.Now()
	return e, true
}

// Peek returns the entry without touching recency.
func (t *lruTier) Peek(key Key) (*fastEntry, bool) {
	el, ok := t.byKey[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*fastEntry), true
}

// Put inserts or replaces the entry for key, then evicts least-recently-used
// entries until the tier is back under budget. A replaced entry's resource
// is released immediately. Returns false when the entry cannot be cached: a
// fully zero budget disables the shard entirely, and an entry whose own size
// exceeds the byte budget can never fit. Either way the caller keeps serving
// the value, it just is not cached - the entry's resource is released.
func (t *lruTier) Put(e *fastEntry) bool {
	if t.budget.zero() {
		e.release()
		return false
	}
	if t.budget.MaxBytes > 0 && e.size > t.budget.MaxBytes {
		e.release()
		return false
	}
	if el, ok := t.byKey[e.key]; ok {
		old := el.Value.(*fastEntry)
		t.bytes -= old.size
		old.release()
		el.Value = e
		t.ll.MoveToFront(el)
	} else {
		t.byKey[e.key] = t.ll.PushFront(e)
	}
	t.bytes += e.size
	e.lastAccessed = time.Now()
	t.evictOverBudget(e.key)
	return true
}

// Delete removes the entry for key and releases its resource.
func (t *lruTier) Delete(key Key) bool {
	el, ok := t.byKey[key]
	if !ok {
		return false
	}
	e := t.removeElement(el)
	e.release()
	return true
}

// Clear releases every entry. Used on teardown.
func (t *lruTier) Clear() {
	for el := t.ll.Front(); el != nil; el = el.Next() {
		el.Value.(*fastEntry).release()
	}
	t.ll.Init()
	t.byKey = make(map[Key]*list.Element)
	t.bytes = 0
}

// evictOverBudget removes LRU entries until budgets hold, never evicting the
// entry just inserted (keep is always newer than anything behind it anyway,
// but guard against a pathological single-item budget).
func (t *lruTier) evictOverBudget(keep Key) {
	for t.over() {
		el := t.ll.Back()
		if el == nil {
			return
		}
		e := el.Value.(*fastEntry)
		if e.key == keep && t.ll.Len() == 1 {
			return
		}
		t.removeElement(el)
		e.release()
		if t.onEvict != nil {
			t.onEvict(e)
		}
	}
}

func (t *lruTier) over() bool {
	if t.budget.MaxItems > 0 && t.ll.Len() > t.budget.MaxItems {
		return true
	}
	if t.budget.MaxBytes > 0 && t.bytes > t.budget.MaxBytes {
		return true
	}
	return false
}

func (t *lruTier) removeElement(el *list.Element) *fastEntry {
	e := el.Value.(*fastEntry)
	t.ll.Remove(el)
	delete(t.byKey, e.key)
	t.bytes -= e.size
	return e
}
