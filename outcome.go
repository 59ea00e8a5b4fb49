package renderq

import (
	"context"
	"sync"
)

// Status describes where a request currently is in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the handle returned by Request. Multiple requests for the same
// key share one Outcome; all waiters observe the same resolution. Once
// resolved an Outcome never changes again.
type Outcome struct {
	key Key

	mu     sync.Mutex
	done   chan struct{}
	status Status
	deriv  Derivative
	err    error
}

func newOutcome(key Key) *Outcome {
	return &Outcome{key: key, done: make(chan struct{}), status: StatusPending}
}

// readyOutcome builds a pre-resolved handle for cache hits.
func readyOutcome(key Key, d Derivative) *Outcome {
	o := newOutcome(key)
	o.resolve(StatusReady, d, nil)
	return o
}

// resolve publishes the final state. Only the first call wins; later calls
// (e.g. a discarded in-flight result arriving after cancellation) are no-ops.
func (o *Outcome) resolve(st Status, d Derivative, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusPending {
		return
	}
	o.status = st
	o.deriv = d
	o.err = err
	close(o.done)
}

// Key returns the derivative key this handle resolves for.
func (o *Outcome) Key() Key { return o.key }

// Done is closed once the outcome is resolved.
func (o *Outcome) Done() <-chan struct{} { return o.done }

// Status returns the current status without blocking.
func (o *Outcome) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Result returns the resolved derivative. Valid only after Done is closed;
// before resolution it reports ErrPending.
func (o *Outcome) Result() (Derivative, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.status {
	case StatusPending:
		return Derivative{}, ErrPending
	case StatusCancelled:
		return Derivative{}, o.cancelErrLocked()
	case StatusFailed:
		return Derivative{}, o.err
	default:
		return o.deriv, nil
	}
}

// Wait blocks until the outcome resolves or ctx expires.
func (o *Outcome) Wait(ctx context.Context) (Derivative, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		return Derivative{}, ctx.Err()
	}
}

func (o *Outcome) cancelErrLocked() error {
	if o.err != nil {
		return o.err
	}
	return ErrCancelled
}
