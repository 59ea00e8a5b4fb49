// Package asynchook decorates renderq.Hooks with a bounded worker queue so a
// slow sink (remote metrics, sampled logging to disk) never stalls the
// engine's hot paths. Events are dropped, not queued unboundedly, when the
// sink cannot keep up.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	eng, _ := renderq.New(renderq.Options{
//	    Namespace: "catalog",
//	    Renderer:  renderer,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/renderq"
)

type Hooks struct {
	inner renderq.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ renderq.Hooks = (*Hooks)(nil)

func New(inner renderq.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) StaleResultDropped(key renderq.Key, taskGen, currentGen uint64) {
	h.try(func() { h.inner.StaleResultDropped(key, taskGen, currentGen) })
}

func (h *Hooks) RenderFailed(key renderq.Key, err error) {
	h.try(func() { h.inner.RenderFailed(key, err) })
}

func (h *Hooks) RenderTimeout(key renderq.Key, elapsed time.Duration) {
	h.try(func() { h.inner.RenderTimeout(key, elapsed) })
}

func (h *Hooks) QueueOverflow(evicted renderq.Key, prio renderq.Priority, inserted bool) {
	h.try(func() { h.inner.QueueOverflow(evicted, prio, inserted) })
}

func (h *Hooks) FastTierEvicted(key renderq.Key, sizeBytes int64) {
	h.try(func() { h.inner.FastTierEvicted(key, sizeBytes) })
}

func (h *Hooks) DurableWriteFailed(key renderq.Key, err error) {
	h.try(func() { h.inner.DurableWriteFailed(key, err) })
}

func (h *Hooks) SelfHealDurable(storageKey, reason string) {
	h.try(func() { h.inner.SelfHealDurable(storageKey, reason) })
}
