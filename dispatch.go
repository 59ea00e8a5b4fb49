package renderq

import (
	"context"
	"errors"
	"time"
)

// task is one admitted generation job, stamped with the generation observed
// at request time. At most one task exists per key at any instant.
type task struct {
	key       Key
	gen       uint64
	provider  ByteProvider
	startedAt time.Time
}

// completion is the worker -> run loop message. Exactly one completion is
// sent per task, whatever happened.
type completion struct {
	key         Key
	gen         uint64
	deriv       Derivative
	res         Resource
	fromDurable bool
	err         error
	timedOut    bool
	elapsed     time.Duration
}

// worker pulls admitted tasks and reports results. Workers never touch
// queue, pending map or fast tier; publication happens on the run loop.
func (e *engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case t := <-e.taskCh:
			c := e.execute(t)
			select {
			case e.doneCh <- c:
			case <-e.stopCh:
				releaseResource(c.res)
				return
			}
		}
	}
}

// execute satisfies a task from the durable tier when possible, otherwise
// renders. Runs on a worker goroutine.
func (e *engine) execute(t *task) completion {
	c := completion{key: t.key, gen: t.gen}

	// Durable tier first: a prior session may have produced this exact
	// derivative already. The record's stamped generation must match.
	if d, ok := e.cache.getDurable(e.baseCtx, t.key, t.gen); ok {
		c.deriv = d
		c.fromDurable = true
		return c
	}

	ctx := e.baseCtx
	var cancel context.CancelFunc
	if e.renderTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.renderTimeout)
		defer cancel()
	}

	type renderRes struct {
		rr  RenderResult
		err error
	}
	resCh := make(chan renderRes, 1)
	start := time.Now()
	go func() {
		rr, err := e.renderer.Render(ctx, t.provider, t.key.Class)
		resCh <- renderRes{rr: rr, err: err}
	}()

	select {
	case r := <-resCh:
		c.elapsed = time.Since(start)
		if r.err != nil {
			if e.renderTimeout > 0 && errors.Is(r.err, context.DeadlineExceeded) {
				c.timedOut = true
			}
			c.err = r.err
			return c
		}
		c.deriv = r.rr.Derivative
		c.res = r.rr.Resource
		return c

	case <-ctx.Done():
		c.elapsed = time.Since(start)
		// Free the slot now; the render cannot be preempted, so release its
		// result whenever it eventually lands. Tracked on the WaitGroup so
		// Close does not return before the release happened.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			r := <-resCh
			releaseResource(r.rr.Resource)
		}()
		if e.baseCtx.Err() != nil {
			c.err = e.baseCtx.Err() // teardown, not a timeout
			return c
		}
		c.timedOut = true
		c.err = ErrRenderTimeout
		return c
	}
}
