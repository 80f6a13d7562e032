package producer

import (
	"context"
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// ScriptedProducer emits a fixed fragment sequence and outcome. It is used
// in tests and examples where deterministic step behavior is needed without
// a model behind it.
type ScriptedProducer struct {
	// Fragments are emitted in order before the outcome.
	Fragments []string
	// Output is the final output. When empty, the concatenated fragments are
	// used instead.
	Output string
	// Trace is returned on the outcome as the tool trace.
	Trace []core.ToolInvocation
	// Usage is returned on the outcome.
	Usage core.TokenUsage
	// Err makes the producer fail after emitting its fragments.
	Err error
	// FragmentDelay inserts a pause before each fragment.
	FragmentDelay time.Duration
	// Block makes the producer hang after its fragments until ctx is
	// cancelled, reporting ctx.Err() as the outcome. Used to exercise
	// cancellation paths.
	Block bool
}

// Produce implements core.Producer.
func (p *ScriptedProducer) Produce(ctx context.Context, req core.ProduceRequest) (<-chan string, <-chan core.Outcome) {
	fragments := make(chan string, len(p.Fragments)+1)
	outcomes := make(chan core.Outcome, 1)

	go func() {
		out := p.run(ctx, fragments)
		close(fragments)
		outcomes <- out
		close(outcomes)
	}()

	return fragments, outcomes
}

func (p *ScriptedProducer) run(ctx context.Context, fragments chan<- string) core.Outcome {
	for _, f := range p.Fragments {
		if p.FragmentDelay > 0 {
			select {
			case <-time.After(p.FragmentDelay):
			case <-ctx.Done():
				return core.Outcome{Err: ctx.Err()}
			}
		}
		select {
		case fragments <- f:
		case <-ctx.Done():
			return core.Outcome{Err: ctx.Err()}
		}
	}

	if p.Block {
		<-ctx.Done()
		return core.Outcome{Err: ctx.Err()}
	}

	if p.Err != nil {
		return core.Outcome{Err: p.Err}
	}

	output := p.Output
	if output == "" {
		for _, f := range p.Fragments {
			output += f
		}
	}

	return core.Outcome{
		Output:    output,
		ToolTrace: p.Trace,
		Usage:     p.Usage,
	}
}
