package pipeline

import (
	"context"
	"time"
)

// Confirmer answers the once-per-run cleanup question.
type Confirmer interface {
	ConfirmCleanup(ctx context.Context, op Operation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, op Operation) (bool, error)

// ConfirmCleanup implements Confirmer.
func (f ConfirmFunc) ConfirmCleanup(ctx context.Context, op Operation) (bool, error) {
	return f(ctx, op)
}

// Always confirms every cleanup.
var Always Confirmer = ConfirmFunc(func(context.Context, Operation) (bool, error) { return true, nil })

// Never declines every cleanup.
var Never Confirmer = ConfirmFunc(func(context.Context, Operation) (bool, error) { return false, nil })

type answer struct {
	ok  bool
	err error
}

// confirmWithin asks c and treats a timeout, a cancelled context, an error
// or a missing confirmer as "no". The second result reports a timeout.
func confirmWithin(ctx context.Context, c Confirmer, op Operation, timeout time.Duration) (bool, bool, error) {
	if c == nil {
		return false, false, nil
	}
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan answer, 1)
	go func() {
		ok, err := c.ConfirmCleanup(askCtx, op)
		done <- answer{ok: ok, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return false, false, a.err
		}
		return a.ok, false, nil
	case <-askCtx.Done():
		return false, ctx.Err() == nil, nil
	}
}
