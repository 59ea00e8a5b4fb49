package renderq

import (
	"fmt"
	"testing"
)

func qkey(i int) Key {
	return Key{AssetID: fmt.Sprintf("asset-%d", i), Class: ClassThumbnail}
}

func mustPush(t *testing.T, q *requestQueue, key Key, prio Priority) *request {
	t.Helper()
	req := &request{key: key, prio: prio}
	if _, admitted := q.Push(req); !admitted {
		t.Fatalf("push %s rejected", key)
	}
	return req
}

// ==============================
// Ordering
// ==============================

func TestDequeueFollowsPriorityThenFIFO(t *testing.T) {
	q := newRequestQueue(0)
	mustPush(t, q, qkey(0), PriorityPreload)     // 2
	mustPush(t, q, qkey(1), PriorityVisible)     // 0
	mustPush(t, q, qkey(2), PriorityNearVisible) // 1

	want := []Key{qkey(1), qkey(2), qkey(0)}
	for i, w := range want {
		req := q.PopHighest()
		if req == nil || req.key != w {
			t.Fatalf("pop %d: got %v want %v", i, req, w)
		}
	}
	if q.PopHighest() != nil {
		t.Fatalf("queue should be empty")
	}
}

func TestFIFOWithinPriorityTier(t *testing.T) {
	q := newRequestQueue(0)
	for i := 0; i < 5; i++ {
		mustPush(t, q, qkey(i), PriorityBackground)
	}
	for i := 0; i < 5; i++ {
		req := q.PopHighest()
		if req.key != qkey(i) {
			t.Fatalf("pop %d: got %s want %s (enqueue order must hold)", i, req.key, qkey(i))
		}
	}
}

// ==============================
// Priority update
// ==============================

func TestUpdatePriorityReordersQueuedEntry(t *testing.T) {
	q := newRequestQueue(0)
	mustPush(t, q, qkey(0), PriorityVisible)
	mustPush(t, q, qkey(1), PriorityBackground)
	mustPush(t, q, qkey(2), PriorityVisible)

	if !q.UpdatePriority(qkey(1), PriorityVisible) {
		t.Fatalf("UpdatePriority should find queued key")
	}
	// The raised entry keeps its enqueue sequence: it joins the visible tier
	// behind qkey(0) but ahead of qkey(2).
	want := []Key{qkey(0), qkey(1), qkey(2)}
	for i, w := range want {
		if req := q.PopHighest(); req.key != w {
			t.Fatalf("pop %d: got %s want %s", i, req.key, w)
		}
	}
}

func TestUpdatePriorityRaisedEntryWinsOverLowerTiers(t *testing.T) {
	q := newRequestQueue(0)
	mustPush(t, q, qkey(0), PriorityNearVisible)
	mustPush(t, q, qkey(1), PriorityBackground)
	mustPush(t, q, qkey(2), PriorityPreload)

	q.UpdatePriority(qkey(1), PriorityVisible)

	if req := q.PopHighest(); req.key != qkey(1) {
		t.Fatalf("raised entry should dequeue first, got %s", req.key)
	}
}

func TestUpdatePriorityUnknownKey(t *testing.T) {
	q := newRequestQueue(0)
	if q.UpdatePriority(qkey(9), PriorityVisible) {
		t.Fatalf("UpdatePriority on unknown key should report false")
	}
}

// ==============================
// Removal
// ==============================

func TestRemoveDeletesEntry(t *testing.T) {
	q := newRequestQueue(0)
	mustPush(t, q, qkey(0), PriorityVisible)
	mustPush(t, q, qkey(1), PriorityVisible)

	if _, ok := q.Remove(qkey(0)); !ok {
		t.Fatalf("Remove should succeed")
	}
	if _, ok := q.Remove(qkey(0)); ok {
		t.Fatalf("second Remove should be a no-op")
	}
	if req := q.PopHighest(); req.key != qkey(1) {
		t.Fatalf("remaining entry mismatch: %s", req.key)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, len=%d", q.Len())
	}
}

// ==============================
// Capacity eviction
// ==============================

func TestQueueOverflowEvictsLowestPriorityOldest(t *testing.T) {
	q := newRequestQueue(3)
	mustPush(t, q, qkey(0), PriorityBackground) // oldest of the lowest tier -> victim
	mustPush(t, q, qkey(1), PriorityBackground)
	mustPush(t, q, qkey(2), PriorityVisible)

	incoming := &request{key: qkey(3), prio: PriorityNearVisible}
	evicted, admitted := q.Push(incoming)
	if !admitted {
		t.Fatalf("higher-priority incoming must be admitted")
	}
	if evicted == nil || evicted.key != qkey(0) {
		t.Fatalf("expected qkey(0) evicted, got %v", evicted)
	}
	if q.Len() != 3 {
		t.Fatalf("capacity must hold after overflow, len=%d", q.Len())
	}
}

func TestQueueOverflowRejectsIncomingWhenItIsLowest(t *testing.T) {
	q := newRequestQueue(2)
	mustPush(t, q, qkey(0), PriorityVisible)
	mustPush(t, q, qkey(1), PriorityPreload)

	incoming := &request{key: qkey(2), prio: PriorityBackground}
	evicted, admitted := q.Push(incoming)
	if admitted || evicted != nil {
		t.Fatalf("incoming lowest must be rejected without eviction (admitted=%v evicted=%v)", admitted, evicted)
	}
	if q.Len() != 2 {
		t.Fatalf("queue size changed on rejected push")
	}
}

func TestQueueOverflowPriorityTieEvictsOldestQueued(t *testing.T) {
	q := newRequestQueue(2)
	mustPush(t, q, qkey(0), PriorityBackground)
	mustPush(t, q, qkey(1), PriorityBackground)

	incoming := &request{key: qkey(2), prio: PriorityBackground}
	evicted, admitted := q.Push(incoming)
	if !admitted {
		t.Fatalf("tie goes to the newer request; incoming must be admitted")
	}
	if evicted == nil || evicted.key != qkey(0) {
		t.Fatalf("oldest queued entry at the lowest tier must be evicted, got %v", evicted)
	}
}

func TestCapacityNeverExceededAfterAnyOperation(t *testing.T) {
	q := newRequestQueue(4)
	for i := 0; i < 32; i++ {
		q.Push(&request{key: qkey(i), prio: Priority(i % 4)})
		if q.Len() > 4 {
			t.Fatalf("capacity exceeded at push %d: len=%d", i, q.Len())
		}
	}
}

// ==============================
// Drain
// ==============================

func TestDrainEmptiesQueue(t *testing.T) {
	q := newRequestQueue(0)
	for i := 0; i < 3; i++ {
		mustPush(t, q, qkey(i), PriorityVisible)
	}
	got := q.Drain()
	if len(got) != 3 || q.Len() != 0 {
		t.Fatalf("drain: got %d entries, len=%d", len(got), q.Len())
	}
	if _, ok := q.Get(qkey(0)); ok {
		t.Fatalf("drained key still indexed")
	}
}
