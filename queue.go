package renderq

import (
	"container/heap"
	"time"
)

// request is one queued generation demand. The engine keeps at most one per
// key (duplicates attach to the existing outcome), so the queue can assume
// key uniqueness.
type request struct {
	key        Key
	prio       Priority
	gen        uint64
	seq        uint64 // enqueue sequence; deterministic FIFO tie-break within a priority tier
	enqueuedAt time.Time

	index int // heap index; -1 once removed
}

// requestQueue orders pending requests by (priority asc, seq asc) on a
// binary heap with a key index for O(log n) reprioritization and removal.
// It enforces a capacity bound by evicting the lowest-priority,
// oldest-enqueued entry.
//
// Not safe for concurrent use; the engine run loop is the single owner.
type requestQueue struct {
	items    []*request
	byKey    map[Key]*request
	capacity int
	nextSeq  uint64
}

func newRequestQueue(capacity int) *requestQueue {
	return &requestQueue{
		byKey:    make(map[Key]*request),
		capacity: capacity,
	}
}

func (q *requestQueue) Len() int { return len(q.items) }

// Push admits req, evicting the worst queued entry when at capacity.
// Returns the evicted entry (nil if none) and whether req was admitted;
// req is rejected only when it is itself the worst candidate.
func (q *requestQueue) Push(req *request) (evicted *request, admitted bool) {
	req.seq = q.nextSeq
	q.nextSeq++
	if req.enqueuedAt.IsZero() {
		req.enqueuedAt = time.Now()
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		worst := q.worst()
		// The incoming entry loses only on strictly lower priority: on a
		// priority tie the queued entry is the older one and is the victim.
		if worst == nil || req.prio > worst.prio {
			return nil, false
		}
		q.remove(worst)
		evicted = worst
	}

	heap.Push((*requestHeap)(q), req)
	q.byKey[req.key] = req
	return evicted, true
}

// PopHighest removes and returns the best entry, or nil when empty.
func (q *requestQueue) PopHighest() *request {
	if len(q.items) == 0 {
		return nil
	}
	req := heap.Pop((*requestHeap)(q)).(*request)
	delete(q.byKey, req.key)
	return req
}

// Get returns the queued entry for key, if any.
func (q *requestQueue) Get(key Key) (*request, bool) {
	req, ok := q.byKey[key]
	return req, ok
}

// UpdatePriority reorders a queued entry. Entries already dispatched are no
// longer in the queue, so this naturally affects queued work only.
func (q *requestQueue) UpdatePriority(key Key, prio Priority) bool {
	req, ok := q.byKey[key]
	if !ok || req.prio == prio {
		return ok
	}
	req.prio = prio
	heap.Fix((*requestHeap)(q), req.index)
	return true
}

// Remove deletes the queued entry for key, if any.
func (q *requestQueue) Remove(key Key) (*request, bool) {
	req, ok := q.byKey[key]
	if !ok {
		return nil, false
	}
	q.remove(req)
	return req, true
}

// Drain empties the queue, returning all entries in arbitrary order.
func (q *requestQueue) Drain() []*request {
	out := q.items
	q.items = nil
	q.byKey = make(map[Key]*request)
	for _, req := range out {
		req.index = -1
	}
	return out
}

func (q *requestQueue) remove(req *request) {
	heap.Remove((*requestHeap)(q), req.index)
	delete(q.byKey, req.key)
}

// worst scans for the lowest-priority, oldest-enqueued entry. O(n), but only
// runs on overflow of an already-bounded queue.
func (q *requestQueue) worst() *request {
	var w *request
	for _, req := range q.items {
		if w == nil || req.prio > w.prio || (req.prio == w.prio && req.seq < w.seq) {
			w = req
		}
	}
	return w
}

// requestHeap adapts requestQueue to container/heap. Lower priority value
// wins; equal priorities fall back to enqueue sequence (stable FIFO).
type requestHeap requestQueue

func (h *requestHeap) Len() int { return len(h.items) }

func (h *requestHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	return a.seq < b.seq
}

func (h *requestHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *requestHeap) Push(x any) {
	req := x.(*request)
	req.index = len(h.items)
	h.items = append(h.items, req)
}

func (h *requestHeap) Pop() any {
	old := h.items
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.index = -1
	h.items = old[:n-1]
	return req
}
