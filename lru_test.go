package renderq

import (
	"sync/atomic"
	"testing"
)

// countingResource counts Release calls so tests can assert exactly-once.
type countingResource struct {
	released atomic.Int32
}

func (r *countingResource) Release() { r.released.Add(1) }

func entryFor(id string, size int64, res Resource) *fastEntry {
	return &fastEntry{
		key:   Key{AssetID: id, Class: ClassThumbnail},
		deriv: Derivative{Data: make([]byte, size), SizeBytes: size},
		res:   res,
		size:  size,
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []Key
	tier := newLRUTier(TierBudget{MaxItems: 2}, func(e *fastEntry) { evicted = append(evicted, e.key) })

	resA := &countingResource{}
	tier.Put(entryFor("a", 1, resA))
	tier.Put(entryFor("b", 1, nil))
	tier.Put(entryFor("c", 1, nil))

	if _, ok := tier.Peek(Key{AssetID: "a", Class: ClassThumbnail}); ok {
		t.Fatalf("a should have been evicted")
	}
	for _, id := range []string{"b", "c"} {
		if _, ok := tier.Peek(Key{AssetID: id, Class: ClassThumbnail}); !ok {
			t.Fatalf("%s should remain", id)
		}
	}
	if got := resA.released.Load(); got != 1 {
		t.Fatalf("a's resource released %d times, want exactly 1", got)
	}
	if len(evicted) != 1 || evicted[0].AssetID != "a" {
		t.Fatalf("evict callback mismatch: %v", evicted)
	}
}

func TestLRUGetRefreshesRecency(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxItems: 2}, nil)
	tier.Put(entryFor("a", 1, nil))
	tier.Put(entryFor("b", 1, nil))

	// Touch a so b becomes the eviction candidate.
	if _, ok := tier.Get(Key{AssetID: "a", Class: ClassThumbnail}); !ok {
		t.Fatalf("get a")
	}
	tier.Put(entryFor("c", 1, nil))

	if _, ok := tier.Peek(Key{AssetID: "b", Class: ClassThumbnail}); ok {
		t.Fatalf("b should have been evicted after a was touched")
	}
	if _, ok := tier.Peek(Key{AssetID: "a", Class: ClassThumbnail}); !ok {
		t.Fatalf("a should remain")
	}
}

func TestLRUByteBudget(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxBytes: 100}, nil)
	tier.Put(entryFor("a", 40, nil))
	tier.Put(entryFor("b", 40, nil))
	tier.Put(entryFor("c", 40, nil)) // 120 > 100: a goes

	if tier.Bytes() > 100 {
		t.Fatalf("byte budget exceeded: %d", tier.Bytes())
	}
	if _, ok := tier.Peek(Key{AssetID: "a", Class: ClassThumbnail}); ok {
		t.Fatalf("a should have been evicted under byte pressure")
	}
}

func TestLRUZeroBudgetDisablesCaching(t *testing.T) {
	tier := newLRUTier(TierBudget{}, nil)
	for i, id := range []string{"a", "b", "c"} {
		res := &countingResource{}
		if tier.Put(entryFor(id, 1024, res)) {
			t.Fatalf("zero-budget tier must reject puts")
		}
		if res.released.Load() != 1 {
			t.Fatalf("rejected entry %d resource released %d times, want 1", i, res.released.Load())
		}
	}
	if tier.Len() != 0 || tier.Bytes() != 0 {
		t.Fatalf("zero-budget tier must stay empty: len=%d bytes=%d", tier.Len(), tier.Bytes())
	}
}

func TestLRURejectsOversizedEntry(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxBytes: 10}, nil)
	res := &countingResource{}
	if tier.Put(entryFor("big", 11, res)) {
		t.Fatalf("oversized entry must be rejected")
	}
	if res.released.Load() != 1 {
		t.Fatalf("rejected entry's resource must be released, got %d", res.released.Load())
	}
	if tier.Len() != 0 {
		t.Fatalf("rejected entry must not be stored")
	}
}

func TestLRUReplaceReleasesOldResource(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxItems: 4}, nil)
	old := &countingResource{}
	next := &countingResource{}
	tier.Put(entryFor("a", 1, old))
	tier.Put(entryFor("a", 2, next))

	if old.released.Load() != 1 {
		t.Fatalf("replaced resource released %d times, want 1", old.released.Load())
	}
	if next.released.Load() != 0 {
		t.Fatalf("new resource must not be released on replace")
	}
	if tier.Len() != 1 || tier.Bytes() != 2 {
		t.Fatalf("replace accounting wrong: len=%d bytes=%d", tier.Len(), tier.Bytes())
	}
}

func TestLRUDeleteReleasesOnce(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxItems: 4}, nil)
	res := &countingResource{}
	tier.Put(entryFor("a", 1, res))

	if !tier.Delete(Key{AssetID: "a", Class: ClassThumbnail}) {
		t.Fatalf("delete should succeed")
	}
	if tier.Delete(Key{AssetID: "a", Class: ClassThumbnail}) {
		t.Fatalf("second delete should be a no-op")
	}
	if res.released.Load() != 1 {
		t.Fatalf("released %d times, want exactly 1", res.released.Load())
	}
}

func TestLRUClearReleasesAll(t *testing.T) {
	tier := newLRUTier(TierBudget{MaxItems: 8}, nil)
	ress := make([]*countingResource, 3)
	for i, id := range []string{"a", "b", "c"} {
		ress[i] = &countingResource{}
		tier.Put(entryFor(id, 1, ress[i]))
	}
	tier.Clear()
	for i, r := range ress {
		if r.released.Load() != 1 {
			t.Fatalf("resource %d released %d times, want 1", i, r.released.Load())
		}
	}
	if tier.Len() != 0 || tier.Bytes() != 0 {
		t.Fatalf("clear accounting wrong: len=%d bytes=%d", tier.Len(), tier.Bytes())
	}
}
