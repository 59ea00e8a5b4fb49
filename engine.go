package renderq

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/renderq/codec"
	"github.com/unkn0wn-root/renderq/genstore"
)

const (
	defaultQueueCapacity = 256
	defaultGenRetention  = 30 * 24 * time.Hour
	defaultSweep         = time.Hour
)

var defaultTierBudget = TierBudget{MaxItems: 512, MaxBytes: 256 << 20}

// successor is a fresh request that arrived for a key whose previous task was
// cancelled but is still occupying the in-flight slot. It is served from the
// old task's result when that result is still valid, or re-enqueued otherwise.
type successor struct {
	prio     Priority
	provider ByteProvider
	out      *Outcome
}

// pending tracks one key through the Queued -> InFlight -> resolved lifecycle.
// At most one pending exists per key; duplicate requests attach to it.
type pending struct {
	key      Key
	gen      uint64
	out      *Outcome
	provider ByteProvider

	queued    *request // non-nil while waiting in the queue
	inflight  bool
	cancelled bool // in-flight result must be discarded on arrival
	succ      *successor
}

// engine composes registry, queue, dispatcher and cache behind the Engine
// interface. A single run goroutine owns all queue/pending/fast-tier state;
// workers communicate exclusively through taskCh and doneCh, so completion
// handling never races a concurrent Request for the same key.
type engine struct {
	ns            string
	renderer      Renderer
	cache         *tierCache
	gen           genstore.GenStore
	queue         *requestQueue
	workers       int
	renderTimeout time.Duration
	log           Logger
	hooks         Hooks

	pending  map[Key]*pending
	inflight int

	cmdCh  chan func()
	taskCh chan *task
	doneCh chan completion
	stopCh chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	queueDepth    atomic.Int64
	inflightGauge atomic.Int64
	rendered      atomic.Uint64
	renderFails   atomic.Uint64
	staleDrops    atomic.Uint64
	queueEvicts   atomic.Uint64
}

func newEngine(opts Options) (*engine, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("renderq: namespace is required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderq: renderer is required")
	}

	log := Logger(NopLogger{})
	if opts.Logger != nil {
		log = opts.Logger
	}
	hooks := Hooks(NopHooks{})
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}

	cdc := opts.Codec
	if cdc == nil {
		c, err := codec.NewCBOR[Derivative](false)
		if err != nil {
			return nil, fmt.Errorf("renderq: default codec: %w", err)
		}
		cdc = c
	}

	gs := opts.GenStore
	if gs == nil {
		sweep := coalesce[time.Duration](opts.CleanupInterval, defaultSweep)
		retention := coalesce[time.Duration](opts.GenRetention, defaultGenRetention)
		gs = genstore.NewLocalGenStore(sweep, retention)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = clamp(runtime.GOMAXPROCS(0)/2, 4, 8)
	}

	defBudget := opts.DefaultBudget
	if defBudget.zero() {
		defBudget = defaultTierBudget
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{
		ns:            opts.Namespace,
		renderer:      opts.Renderer,
		gen:           gs,
		queue:         newRequestQueue(coalesce[int](opts.QueueCapacity, defaultQueueCapacity)),
		workers:       workers,
		renderTimeout: opts.RenderTimeout,
		log:           log,
		hooks:         hooks,
		pending:       make(map[Key]*pending),
		cmdCh:         make(chan func()),
		taskCh:        make(chan *task),
		doneCh:        make(chan completion, workers),
		stopCh:        make(chan struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
	}
	e.cache = newTierCache(opts.Namespace, opts.Store, cdc, opts.DurableTTL,
		opts.FastTier, defBudget, log, hooks)

	e.wg.Add(1 + workers)
	go e.run()
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e, nil
}

// run is the single owner of queue, pending map and fast tier.
func (e *engine) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.cmdCh:
			fn()
		case c := <-e.doneCh:
			e.handleCompletion(c)
		case <-e.stopCh:
			e.teardown()
			return
		}
	}
}

// do executes fn on the run loop and waits for it. Returns false when the
// engine shut down before fn could run.
func (e *engine) do(ctx context.Context, fn func()) bool {
	wrapped := make(chan struct{})
	call := func() {
		fn()
		close(wrapped)
	}
	select {
	case e.cmdCh <- call:
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case <-wrapped:
		return true
	case <-e.stopCh:
		return false
	}
}

// ---- Engine interface ----

func (e *engine) Request(ctx context.Context, assetID string, class SizeClass, prio Priority, provider ByteProvider) (*Outcome, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	key := Key{AssetID: assetID, Class: class}
	var (
		out  *Outcome
		rerr error
	)
	ok := e.do(ctx, func() { out, rerr = e.handleRequest(key, prio, provider) })
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrClosed
	}
	return out, rerr
}

func (e *engine) UpdatePriority(assetID string, class SizeClass, prio Priority) {
	key := Key{AssetID: assetID, Class: class}
	e.do(context.Background(), func() { e.handleUpdatePriority(key, prio) })
}

func (e *engine) Cancel(assetID string, class SizeClass) {
	key := Key{AssetID: assetID, Class: class}
	e.do(context.Background(), func() { e.handleCancel(key) })
}

func (e *engine) CancelAll() {
	e.do(context.Background(), func() {
		for _, p := range e.pending {
			e.cancelPending(p)
		}
	})
}

func (e *engine) Invalidate(assetID string, class SizeClass) error {
	if e.closed.Load() {
		return ErrClosed
	}
	key := Key{AssetID: assetID, Class: class}
	var ierr error
	if !e.do(context.Background(), func() { ierr = e.handleInvalidate(key) }) {
		return ErrClosed
	}
	return ierr
}

func (e *engine) Stats() Stats {
	return Stats{
		QueueDepth:     int(e.queueDepth.Load()),
		InFlight:       int(e.inflightGauge.Load()),
		FastItems:      int(e.cache.itemsGauge.Load()),
		FastBytes:      e.cache.bytesGauge.Load(),
		FastHits:       e.cache.fastHits.Load(),
		DurableHits:    e.cache.durableHits.Load(),
		Rendered:       e.rendered.Load(),
		RenderFailures: e.renderFails.Load(),
		StaleDrops:     e.staleDrops.Load(),
		QueueEvictions: e.queueEvicts.Load(),
		FastEvictions:  e.cache.fastEvictions.Load(),
	}
}

func (e *engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()      // unblock renders
	close(e.stopCh) // run loop tears down, workers exit

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Workers are gone; a completion still buffered here lost the shutdown
	// race against stopCh and was never published, so its resource is ours
	// to release.
drain:
	for {
		select {
		case c := <-e.doneCh:
			releaseResource(c.res)
		default:
			break drain
		}
	}

	cerr := e.cache.close(ctx)
	gerr := e.gen.Close(ctx)
	if cerr != nil {
		return cerr
	}
	return gerr
}

// ---- run-loop handlers ----

func (e *engine) handleRequest(key Key, prio Priority, provider ByteProvider) (*Outcome, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	// Attach to an existing request for the key, raising its urgency when
	// the new caller is more impatient.
	if p, ok := e.pending[key]; ok {
		if p.cancelled {
			return e.attachSuccessor(p, prio, provider), nil
		}
		if p.queued != nil && prio < p.queued.prio {
			e.queue.UpdatePriority(key, prio)
		}
		return p.out, nil
	}

	gen := e.genSnapshot(key)

	// Fast tier. An entry stamped with an older generation can linger only
	// when the generation moved in a shared registry without a local
	// invalidate; treat it as the stale artifact it is.
	if ent, ok := e.cache.getFast(key); ok {
		if ent.gen == gen {
			return readyOutcome(key, ent.deriv), nil
		}
		e.cache.deleteFast(key)
	}

	out := newOutcome(key)
	req := &request{key: key, prio: prio, gen: gen}
	evicted, admitted := e.queue.Push(req)
	if !admitted {
		// The request itself is the lowest-priority entry of a full queue.
		// Not an error: the handle resolves cancelled.
		e.queueEvicts.Add(1)
		e.hooks.QueueOverflow(key, prio, false)
		out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
		return out, nil
	}
	if evicted != nil {
		e.queueEvicts.Add(1)
		e.hooks.QueueOverflow(evicted.key, evicted.prio, true)
		if ep, ok := e.pending[evicted.key]; ok {
			delete(e.pending, evicted.key)
			ep.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
		}
	}

	e.pending[key] = &pending{key: key, gen: gen, out: out, provider: provider, queued: req}
	e.dispatch()
	e.syncGauges()
	return out, nil
}

// attachSuccessor queues a logical follow-up behind a cancelled-but-still-
// running task. The key stays occupied (at most one in-flight task per key);
// the successor is served or re-enqueued when the old result lands.
func (e *engine) attachSuccessor(p *pending, prio Priority, provider ByteProvider) *Outcome {
	if p.succ == nil {
		p.succ = &successor{prio: prio, provider: provider, out: newOutcome(p.key)}
	} else if prio < p.succ.prio {
		p.succ.prio = prio
	}
	return p.succ.out
}

func (e *engine) handleUpdatePriority(key Key, prio Priority) {
	p, ok := e.pending[key]
	if !ok || p.queued == nil {
		return // in-flight, cached or unknown: nothing to reorder
	}
	e.queue.UpdatePriority(key, prio)
}

func (e *engine) handleCancel(key Key) {
	p, ok := e.pending[key]
	if !ok {
		return
	}
	e.cancelPending(p)
	e.syncGauges()
}

func (e *engine) cancelPending(p *pending) {
	if p.succ != nil {
		p.succ.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
		p.succ = nil
	}
	if p.queued != nil {
		e.queue.Remove(p.key)
		p.queued = nil
		delete(e.pending, p.key)
	} else if p.inflight {
		// Execution is not preemptible; keep the slot marker so no second
		// task starts for the key, and discard the result on arrival.
		p.cancelled = true
	}
	p.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
}

func (e *engine) handleInvalidate(key Key) error {
	sk := e.cache.storageKey(key)
	newGen, bumpErr := e.gen.Bump(e.baseCtx, sk)
	delErr := e.cache.delete(e.baseCtx, key)
	if p, ok := e.pending[key]; ok {
		e.cancelPending(p)
	}
	e.syncGauges()
	if bumpErr != nil || delErr != nil {
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	e.log.Debug("invalidated key", Fields{"key": key.String(), "newGen": newGen})
	return nil
}

// dispatch fills free slots in strict (priority, FIFO) order. A dequeued key
// that somehow already has in-flight work is dropped, not re-rendered - its
// outcome is the pending one.
func (e *engine) dispatch() {
	for e.inflight < e.workers {
		req := e.queue.PopHighest()
		if req == nil {
			return
		}
		p, ok := e.pending[req.key]
		if !ok || p.inflight {
			continue
		}
		p.queued = nil
		p.inflight = true
		e.inflight++
		t := &task{key: req.key, gen: p.gen, provider: p.provider, startedAt: time.Now()}
		select {
		case e.taskCh <- t:
		case <-e.stopCh:
			return
		}
	}
}

func (e *engine) handleCompletion(c completion) {
	e.inflight--
	p, ok := e.pending[c.key]
	if ok {
		delete(e.pending, c.key)
	}

	switch {
	case !ok:
		// Pending vanished (teardown races); nothing to publish.
		releaseResource(c.res)

	case p.cancelled:
		releaseResource(c.res)
		e.resolveSuccessor(p, c)

	case c.timedOut:
		releaseResource(c.res)
		e.hooks.RenderTimeout(c.key, c.elapsed)
		p.out.resolve(StatusCancelled, Derivative{}, ErrRenderTimeout)

	case c.err != nil:
		e.renderFails.Add(1)
		rerr := &RenderError{Key: c.key, Err: c.err}
		e.hooks.RenderFailed(c.key, c.err)
		e.log.Warn("render failed", Fields{"key": c.key.String(), "err": c.err})
		p.out.resolve(StatusFailed, Derivative{}, rerr)

	default:
		cur := e.genSnapshot(c.key)
		if c.gen != cur {
			// Superseded while rendering. Silently discard: never cached,
			// never delivered as a fresh success.
			releaseResource(c.res)
			e.staleDrops.Add(1)
			e.hooks.StaleResultDropped(c.key, c.gen, cur)
			p.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
			break
		}
		e.publish(p, c)
	}

	e.dispatch()
	e.syncGauges()
}

// publish stores a validated result in both tiers and resolves the handle.
func (e *engine) publish(p *pending, c completion) {
	e.cache.putFast(c.key, c.gen, c.deriv, c.res)
	if !c.fromDurable {
		e.rendered.Add(1)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.cache.putDurable(e.baseCtx, c.key, c.gen, c.deriv)
		}()
	}
	p.out.resolve(StatusReady, c.deriv, nil)
}

// resolveSuccessor serves a request that arrived behind a cancelled task.
// A still-valid result satisfies it directly; anything else re-enqueues it.
func (e *engine) resolveSuccessor(p *pending, c completion) {
	s := p.succ
	if s == nil {
		return
	}
	if c.err == nil && !c.timedOut && c.gen == e.genSnapshot(c.key) {
		// The discarded task produced a current result; the resource was
		// already released with it, so cache the derivative alone.
		e.cache.putFast(c.key, c.gen, c.deriv, nil)
		s.out.resolve(StatusReady, c.deriv, nil)
		return
	}
	gen := e.genSnapshot(p.key)
	req := &request{key: p.key, prio: s.prio, gen: gen}
	evicted, admitted := e.queue.Push(req)
	if !admitted {
		e.queueEvicts.Add(1)
		e.hooks.QueueOverflow(p.key, s.prio, false)
		s.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
		return
	}
	if evicted != nil {
		e.queueEvicts.Add(1)
		e.hooks.QueueOverflow(evicted.key, evicted.prio, true)
		if ep, ok := e.pending[evicted.key]; ok {
			delete(e.pending, evicted.key)
			ep.out.resolve(StatusCancelled, Derivative{}, ErrCancelled)
		}
	}
	e.pending[p.key] = &pending{key: p.key, gen: gen, out: s.out, provider: s.provider, queued: req}
}

// teardown runs on the run loop when stopCh closes: everything unresolved
// resolves cancelled and the fast tier releases its resources. Store and
// genstore close later, after workers drained (Close owns that).
func (e *engine) teardown() {
	e.queue.Drain()
	for key, p := range e.pending {
		delete(e.pending, key)
		if p.succ != nil {
			p.succ.out.resolve(StatusCancelled, Derivative{}, ErrClosed)
		}
		p.out.resolve(StatusCancelled, Derivative{}, ErrClosed)
	}
	e.cache.clearFast()
	e.syncGauges()
}

func (e *engine) genSnapshot(key Key) uint64 {
	g, err := e.gen.Snapshot(e.baseCtx, e.cache.storageKey(key))
	if err != nil {
		// Conservative: treat as 0 so mismatched results are discarded and
		// durable records self-heal on the next read.
		e.log.Warn("gen snapshot error", Fields{"key": key.String(), "err": err})
		return 0
	}
	return g
}

func (e *engine) syncGauges() {
	e.queueDepth.Store(int64(e.queue.Len()))
	e.inflightGauge.Store(int64(e.inflight))
	e.cache.syncGauges()
}

func releaseResource(r Resource) {
	if r != nil {
		r.Release()
	}
}
