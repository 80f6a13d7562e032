package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// stepExecutor owns one step's lifecycle: it launches the external producer,
// pipes the producer's raw fragments onto the step's public TokenStream
// (through a schemaBuffer when the step declares an output schema), builds
// the StepResult exactly once and always drives the stream to a terminal
// state. The executor is single-use; a fresh run builds fresh executors.
type stepExecutor struct {
	spec     core.StepSpec
	producer core.Producer
	stream   *core.TokenStream

	mu       sync.Mutex
	started  bool
	resolved bool
	res      core.StepResult
}

func newStepExecutor(spec core.StepSpec, producer core.Producer, buffer int) *stepExecutor {
	return &stepExecutor{
		spec:     spec,
		producer: producer,
		stream:   core.NewTokenStream(buffer),
		res: core.StepResult{
			StepID:    spec.ID,
			AgentName: spec.AgentName,
			Status:    core.StatusPending,
		},
	}
}

// run executes the step to completion: it launches the producer, drains its
// fragment channel concurrently with the run-task, awaits the terminal
// outcome and resolves the StepResult. The public stream is closed on every
// path. A producer terminated by run cancellation resolves as not-run, which
// is a distinct terminal status from failed.
func (x *stepExecutor) run(ctx context.Context, input string) core.StepResult {
	x.mu.Lock()
	x.started = true
	x.res.Status = core.StatusRunning
	x.res.StartedAt = time.Now().UTC()
	x.mu.Unlock()

	defer x.stream.Close()

	// With no consumer draining, Push stalls against a full buffer and would
	// sit out a cancellation. Closing the stream on ctx.Done unblocks it;
	// Push then reports ErrStreamClosed and the loop below switches to
	// discarding.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			x.stream.Close()
		case <-watchDone:
		}
	}()

	fragments, outcomes := x.producer.Produce(ctx, core.ProduceRequest{
		Input:  input,
		Model:  x.spec.Model,
		Stream: x.spec.Streaming,
	})

	var buf *schemaBuffer
	if x.spec.HasOutputSchema() {
		buf = newSchemaBuffer(x.spec.OutputSchema, x.stream, x.spec.Streaming)
	}

	aborted := false
	for fragment := range fragments {
		if buf != nil {
			// Token-level streaming of partially valid structured output is
			// meaningless to a consumer expecting a well-formed object, so
			// schema-bearing steps buffer instead of forwarding.
			buf.append(fragment)
			continue
		}
		if x.spec.Streaming {
			if err := x.stream.Push(fragment); err != nil {
				// Stream force-closed mid-run, so the run is being torn
				// down. Keep draining so the producer never blocks on its
				// fragment channel.
				aborted = true
				for range fragments {
				}
				break
			}
		}
	}

	outcome := <-outcomes

	res := core.StepResult{
		StepID:            x.spec.ID,
		AgentName:         x.spec.AgentName,
		Output:            outcome.Output,
		IntermediateSteps: outcome.ToolTrace,
		Usage:             outcome.Usage,
	}

	switch {
	case aborted, errors.Is(outcome.Err, context.Canceled):
		res.Status = core.StatusNotRun
		res.Error = core.ErrRunCancelled.Error()
	case outcome.Err == nil:
		res.Status = core.StatusSucceeded
		if buf != nil {
			parsed, parseErr := buf.flush(outcome.Output)
			res.Parsed = parsed
			if parseErr != nil {
				// Soft degradation: garbled structured output never aborts
				// an otherwise successful step.
				res.ParseError = parseErr.Error()
			}
		}
	default:
		res.Status = core.StatusFailed
		res.Error = outcome.Err.Error()
	}

	return x.resolve(res)
}

// resolve stamps the completion time and stores the result exactly once.
// The first resolution wins; later attempts return the stored result.
func (x *stepExecutor) resolve(res core.StepResult) core.StepResult {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.resolved {
		return x.res
	}

	if res.Status.Terminal() {
		if !res.StartedAt.IsZero() || !x.res.StartedAt.IsZero() {
			if res.StartedAt.IsZero() {
				res.StartedAt = x.res.StartedAt
			}
			res.FinishedAt = time.Now().UTC()
		}
		x.res = res
		x.resolved = true
	}

	return x.res
}

// forceResolve is the error-boundary hook: it terminates an unresolved
// executor so no consumer blocks. A step that never started resolves as
// not-run; a step that started but never reported resolves as failed with
// the boundary's captured error (unless the run was cancelled, which is
// not-run by definition). It reports whether this call resolved the step.
func (x *stepExecutor) forceResolve(boundaryErr error, cancelledRun bool) (core.StepResult, bool) {
	defer x.stream.Close()

	x.mu.Lock()
	if x.resolved {
		res := x.res
		x.mu.Unlock()
		return res, false
	}
	started := x.started
	x.mu.Unlock()

	res := core.StepResult{
		StepID:    x.spec.ID,
		AgentName: x.spec.AgentName,
		Status:    core.StatusNotRun,
	}

	if started && !cancelledRun && boundaryErr != nil {
		res.Status = core.StatusFailed
		res.Error = boundaryErr.Error()
	} else if cancelledRun {
		res.Error = core.ErrRunCancelled.Error()
	}

	return x.resolve(res), true
}

// result returns the resolved result, or the current pending snapshot.
func (x *stepExecutor) result() core.StepResult {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.res
}
