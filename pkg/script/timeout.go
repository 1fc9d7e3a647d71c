package script

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/kerf/pkg/caderr"
)

// DefaultTimeout is the limit for a single evaluation.
const DefaultTimeout = 5 * time.Second

type evalResult struct {
	errors []EvalError
	err    error
}

// wait returns the result from ch unless the timeout, ctx or a newer
// evaluation gets there first. The evaluating goroutine cannot be
// interrupted; a late result is discarded when it arrives.
func (e *Engine) wait(ctx context.Context, ch <-chan evalResult, gen uint64) (evalResult, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		e.mu.Lock()
		current := e.generation
		e.mu.Unlock()
		if gen != current {
			return evalResult{}, fmt.Errorf("evaluation superseded by newer request")
		}
		return res, nil

	case <-timer.C:
		return evalResult{}, fmt.Errorf("evaluation timed out after %s", e.timeout)

	case <-ctx.Done():
		return evalResult{}, caderr.Wrap(caderr.Cancelled, "Evaluate", ctx.Err())
	}
}
