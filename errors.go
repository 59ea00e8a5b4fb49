package renderq

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("renderq: engine closed")

	// ErrCancelled resolves outcomes whose request was cancelled, evicted
	// from a full queue, or superseded by invalidation.
	ErrCancelled = errors.New("renderq: request cancelled")

	// ErrRenderTimeout resolves outcomes whose render exceeded
	// Options.RenderTimeout. The slot is freed; the late result is discarded.
	ErrRenderTimeout = errors.New("renderq: render timed out")

	// ErrPending is returned by Outcome.Result before resolution.
	ErrPending = errors.New("renderq: outcome not resolved yet")
)

// RenderError wraps a renderer failure for a specific key. It is the only
// error class that crosses the public boundary from generation work; stale,
// cancelled and evicted conditions are statuses, not errors.
type RenderError struct {
	Key Key
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("renderq: render %s failed: %v", e.Key, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// InvalidateError reports a partially failed invalidation: the generation
// bump and the durable delete are independent best-effort steps and either
// can fail on a remote backend.
type InvalidateError struct {
	Key     Key
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("renderq: invalidate %s: gen bump and durable delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("renderq: invalidate %s: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("renderq: invalidate %s: durable delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("renderq: invalidate %s: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
