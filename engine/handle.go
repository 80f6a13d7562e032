package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// RunHandle is the caller's view of an in-flight run. It exposes the
// awaitable final RunResult, the per-step fragment streams in plan order,
// and a cancel operation. All methods are safe for concurrent use and Wait
// may be called by multiple consumers.
type RunHandle struct {
	runID     string
	plan      core.Plan
	executors []*stepExecutor
	cancel    context.CancelFunc

	done       chan struct{}
	completeMu sync.Mutex
	result     core.RunResult
	err        error
}

// RunID returns the stable identifier of the run.
func (h *RunHandle) RunID() string { return h.runID }

// Plan returns the immutable plan this run executes.
func (h *RunHandle) Plan() core.Plan { return h.plan }

// Steps returns the effective step specifications in plan order, including
// any run-level schema applied by policy.
func (h *RunHandle) Steps() []core.StepSpec {
	specs := make([]core.StepSpec, len(h.executors))
	for i, ex := range h.executors {
		specs[i] = ex.spec
	}
	return specs
}

// Stream returns the fragment stream of the step at the given plan position.
// Streams terminate on every exit path, so draining one never blocks forever.
func (h *RunHandle) Stream(position int) *core.TokenStream {
	return h.executors[position].stream
}

// Cancel requests cooperative termination of the run. Idempotent. Unresolved
// steps resolve as not-run; already resolved steps keep their outcome.
func (h *RunHandle) Cancel() { h.cancel() }

// Wait blocks until the run finalizes or ctx is done, returning the
// aggregated RunResult. On run failure the partial result is still returned
// alongside the terminal error.
func (h *RunHandle) Wait(ctx context.Context) (core.RunResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return core.RunResult{}, ctx.Err()
	}
}

// complete resolves the handle exactly once. Later calls are ignored.
func (h *RunHandle) complete(res core.RunResult, err error) {
	h.completeMu.Lock()
	defer h.completeMu.Unlock()

	select {
	case <-h.done:
		return
	default:
	}

	h.result = res
	h.err = err
	close(h.done)
}
