package engine

import (
	"context"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// Multiplexer composes the per-step fragment streams of a run into a single
// ordered event sequence for the streaming path. It consumes each step's
// stream to exhaustion in plan order (no interleaving across steps), then
// awaits the final RunResult to emit the function-call trace events, and
// closes with an end-of-run marker. The returned sequence is finite and not
// restartable; a fresh run produces a fresh sequence.
//
// The multiplexer is the terminal sink for failures on the streaming path:
// a run failure surfaces as exactly one ErrorEvent followed by EndOfRunEvent
// and is never re-raised past this boundary.
type Multiplexer struct {
	bufferSize int
	logger     logging.Logger
}

// MultiplexerOptions configure a Multiplexer.
type MultiplexerOptions struct {
	// BufferSize sets the multiplexed channel's buffer.
	BufferSize int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewMultiplexer constructs a Multiplexer with optional overrides.
func NewMultiplexer(optFns ...func(o *MultiplexerOptions)) *Multiplexer {
	opts := MultiplexerOptions{
		BufferSize: DefaultConfig.EventBufferSize,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Multiplexer{bufferSize: opts.BufferSize, logger: opts.Logger}
}

// Drain returns the run's multiplexed event channel. The channel is closed
// after the end-of-run marker or when ctx is done. Abandoning a drain does
// not terminate the run; it continues under its own context, though a
// streaming step whose buffer fills then stalls until that context ends.
// Telemetry is driven by step completion, not consumption, so completed
// steps are recorded regardless of draining.
func (m *Multiplexer) Drain(ctx context.Context, handle *RunHandle) <-chan core.FragmentEvent {
	out := make(chan core.FragmentEvent, m.bufferSize)

	go func() {
		defer close(out)

		emit := func(ev core.FragmentEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Step i's fragments are fully exhausted before any step i+1
		// fragment is emitted. Streams of steps that never launch are
		// force-closed by the engine's boundary, so this loop terminates.
		for _, ex := range handle.executors {
			spec := ex.spec
			for {
				fragment, ok := ex.stream.Next()
				if !ok {
					break
				}
				var ev core.FragmentEvent
				if spec.HasOutputSchema() {
					ev = core.ParsedLineEvent{StepID: spec.ID, AgentName: spec.AgentName, Line: fragment}
				} else {
					ev = core.TokenEvent{StepID: spec.ID, AgentName: spec.AgentName, Text: fragment}
				}
				if !emit(ev) {
					return
				}
			}
		}

		result, err := handle.Wait(ctx)
		if err != nil {
			m.logger.Error("run failed during drain", "run_id", handle.RunID(), "error", err)
			if emit(core.ErrorEvent{Message: err.Error()}) {
				emit(core.EndOfRunEvent{})
			}
			return
		}

		// Tool-call traces depend on final step results, so they always
		// follow every token/line fragment of the run.
		for _, step := range result.Steps {
			for _, call := range step.IntermediateSteps {
				if call.Tool == "" {
					continue
				}
				if !emit(core.FunctionCallEvent{
					StepName: step.AgentName,
					Function: call.Tool,
					Args:     call.Input,
					Response: call.Response,
				}) {
					return
				}
			}
		}

		emit(core.EndOfRunEvent{})
	}()

	return out
}
