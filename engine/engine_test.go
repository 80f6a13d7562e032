package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/testutil"
	"github.com/hupe1980/flowmesh/producer"
	"github.com/hupe1980/flowmesh/telemetry"
)

// recordingProducer wraps a producer and captures the input of every call so
// tests can assert step-to-step forwarding.
type recordingProducer struct {
	inner core.Producer

	mu     sync.Mutex
	inputs []string
}

func (p *recordingProducer) Produce(ctx context.Context, req core.ProduceRequest) (<-chan string, <-chan core.Outcome) {
	p.mu.Lock()
	p.inputs = append(p.inputs, req.Input)
	p.mu.Unlock()
	return p.inner.Produce(ctx, req)
}

func (p *recordingProducer) Inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputs...)
}

func mapResolver(producers map[string]core.Producer) ProducerResolver {
	return func(spec core.StepSpec) (core.Producer, error) {
		p, ok := producers[spec.AgentName]
		if !ok {
			return nil, errors.New("unknown agent " + spec.AgentName)
		}
		return p, nil
	}
}

func newTestEngine(resolver ProducerResolver, sink telemetry.Sink) *Engine {
	return New(func(o *Options) {
		o.Resolver = resolver
		o.Telemetry = telemetry.NewRecorder(sink)
	})
}

func TestEngine_SequentialPipeline(t *testing.T) {
	second := &recordingProducer{inner: &producer.ScriptedProducer{
		Fragments: []string{"polished"},
		Usage:     core.TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}}

	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{
			Fragments: []string{"Hel", "lo"},
			Usage:     core.TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
		},
		"Beta": second,
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Step("Beta").Build()

	handle, err := eng.Start(context.Background(), plan, "start input")
	require.NoError(t, err)

	mux := NewMultiplexer()
	events := testutil.CollectEvents(mux.Drain(context.Background(), handle), 2*time.Second)

	result, err := handle.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.StatusSucceeded, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "Hello", result.Steps[0].Output)
	assert.Equal(t, "polished", result.Steps[1].Output)
	assert.Equal(t, "polished", result.Output)

	// The first step's output is forwarded verbatim as the second's input.
	assert.Equal(t, []string{"Hello"}, second.Inputs())

	// Token ordering: all Alpha fragments precede Beta's, end-of-run is last.
	assert.Equal(t, []string{"Hel", "lo", "polished"}, testutil.TokenTexts(events))
	assert.IsType(t, core.EndOfRunEvent{}, events[len(events)-1])

	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 200, records[0].StatusCode)
	assert.Equal(t, 200, records[1].StatusCode)
	assert.Equal(t, 3, records[0].Usage.TotalTokens)
	assert.Equal(t, 7, records[1].Usage.TotalTokens)
}

func TestEngine_SchemaStepEmitsParsedLines(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
		},
		"required": []string{"answer"},
	}

	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{Fragments: []string{"Hel", "lo"}},
		"Beta":  &producer.ScriptedProducer{Fragments: []string{`{"ans`, `wer": "hi"}`}},
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").SchemaStep("Beta", schema).Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	mux := NewMultiplexer()
	events := testutil.CollectEvents(mux.Drain(context.Background(), handle), 2*time.Second)

	result, err := handle.Wait(context.Background())
	require.NoError(t, err)

	// Raw tokens from Alpha, a single parsed line from Beta.
	assert.Equal(t, []string{"Hel", "lo"}, testutil.TokenTexts(events))
	assert.Equal(t, []string{`{"answer":"hi"}`}, testutil.ParsedLines(events))

	require.Len(t, result.Steps, 2)
	beta := result.Steps[1]
	assert.Equal(t, core.StatusSucceeded, beta.Status)
	assert.Empty(t, beta.ParseError)
	parsed, ok := beta.Parsed.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", parsed["answer"])
}

func TestEngine_SchemaParseFailureIsSoft(t *testing.T) {
	schema := map[string]any{"type": "object"}

	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{Fragments: []string{"this is not json"}},
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").SchemaStep("Alpha", schema).Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	mux := NewMultiplexer()
	events := testutil.CollectEvents(mux.Drain(context.Background(), handle), 2*time.Second)

	result, err := handle.Wait(context.Background())
	require.NoError(t, err)

	// Parse failure degrades to one empty-object fragment; the step and the
	// run both stay successful and telemetry reports success.
	assert.Equal(t, []string{"{}"}, testutil.ParsedLines(events))
	assert.Equal(t, core.StatusSucceeded, result.Status)

	step := result.Steps[0]
	assert.Equal(t, core.StatusSucceeded, step.Status)
	assert.NotEmpty(t, step.ParseError)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 200, records[0].StatusCode)
}

func TestEngine_FailureHaltsPipeline(t *testing.T) {
	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{Fragments: []string{"ok"}},
		"Beta":  &producer.ScriptedProducer{Err: errors.New("model unavailable")},
		"Gamma": &producer.ScriptedProducer{Fragments: []string{"never"}},
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Step("Beta").Step("Gamma").Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	mux := NewMultiplexer()
	events := testutil.CollectEvents(mux.Drain(context.Background(), handle), 2*time.Second)

	result, runErr := handle.Wait(context.Background())
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, core.ErrStepFailed)

	assert.Equal(t, core.StatusFailed, result.Status)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, core.StatusSucceeded, result.Steps[0].Status)
	assert.Equal(t, core.StatusFailed, result.Steps[1].Status)
	assert.Equal(t, core.StatusNotRun, result.Steps[2].Status)
	assert.Equal(t, "model unavailable", result.Steps[1].Error)

	failed, ok := result.FailedStep()
	require.True(t, ok)
	assert.Equal(t, "step-1", failed.StepID)

	// Error path: exactly one error event followed by the end-of-run marker.
	require.GreaterOrEqual(t, len(events), 2)
	errEvent, ok := events[len(events)-2].(core.ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEvent.Message, "model unavailable")
	assert.IsType(t, core.EndOfRunEvent{}, events[len(events)-1])

	// One record per resolved step, none for the never-launched one.
	records := sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 200, records[0].StatusCode)
	assert.Equal(t, 500, records[1].StatusCode)
	assert.Equal(t, "model unavailable", records[1].Error)
}

func TestEngine_Cancellation(t *testing.T) {
	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{Fragments: []string{"partial"}, Block: true},
		"Beta":  &producer.ScriptedProducer{Fragments: []string{"never"}},
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Step("Beta").Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, eng.Cancel(handle.RunID()))
	}()

	result, runErr := handle.Wait(context.Background())
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, core.ErrRunCancelled)

	// A cancelled step is not a failed step.
	assert.Equal(t, core.StatusNotRun, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, core.StatusNotRun, result.Steps[0].Status)
	assert.Equal(t, core.StatusNotRun, result.Steps[1].Status)

	// Cancelled steps produce no telemetry records.
	assert.Empty(t, sink.Records())

	// Cancelling a finished run errors.
	assert.Error(t, eng.Cancel(handle.RunID()))
}

func TestEngine_CancelUnblocksStalledStream(t *testing.T) {
	fragments := make([]string, 50)
	for i := range fragments {
		fragments[i] = "tok"
	}

	sink := telemetry.NewInMemorySink()
	eng := New(func(o *Options) {
		o.Config.EventBufferSize = 2
		o.Resolver = mapResolver(map[string]core.Producer{
			"Alpha": &producer.ScriptedProducer{Fragments: fragments},
		})
		o.Telemetry = telemetry.NewRecorder(sink)
	})

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	// Nothing drains the stream, so the executor stalls pushing against the
	// tiny buffer. Cancellation must still finalize the run.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, eng.Cancel(handle.RunID()))

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelWait()

	result, runErr := handle.Wait(waitCtx)
	require.ErrorIs(t, runErr, core.ErrRunCancelled)
	assert.Equal(t, core.StatusNotRun, result.Status)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, core.StatusNotRun, result.Steps[0].Status)

	// An interrupted step produces no telemetry record.
	assert.Empty(t, sink.Records())

	// The stream terminated, so a late drain observes the closed state.
	assert.True(t, handle.Stream(0).Closed())
}

func TestEngine_CancellationKeepsResolvedSteps(t *testing.T) {
	sink := telemetry.NewInMemorySink()
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{
			Fragments: []string{"done"},
			Usage:     core.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		},
		"Beta": &producer.ScriptedProducer{Fragments: []string{"never finished"}, Block: true},
	}), sink)

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Step("Beta").Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, eng.Cancel(handle.RunID()))
	}()

	result, runErr := handle.Wait(context.Background())
	require.ErrorIs(t, runErr, core.ErrRunCancelled)
	assert.Equal(t, core.StatusNotRun, result.Status)

	// Steps resolved before cancellation keep their outcome; the interrupted
	// step resolves as not-run.
	require.Len(t, result.Steps, 2)
	assert.Equal(t, core.StatusSucceeded, result.Steps[0].Status)
	assert.Equal(t, "done", result.Steps[0].Output)
	assert.Equal(t, core.StatusNotRun, result.Steps[1].Status)

	// Telemetry covers exactly the steps that resolved.
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "step-0", records[0].StepID)
	assert.Equal(t, 200, records[0].StatusCode)
	assert.Equal(t, 2, records[0].Usage.TotalTokens)
}

func TestEngine_FunctionCallEventsFollowTokens(t *testing.T) {
	eng := newTestEngine(mapResolver(map[string]core.Producer{
		"Alpha": &producer.ScriptedProducer{
			Fragments: []string{"using tool"},
			Trace: []core.ToolInvocation{
				{Tool: "calculate_sum", Input: `{"a":1,"b":2}`, Response: "3"},
			},
		},
		"Beta": &producer.ScriptedProducer{Fragments: []string{"done"}},
	}), telemetry.NewInMemorySink())

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Step("Beta").Build()

	handle, err := eng.Start(context.Background(), plan, "in")
	require.NoError(t, err)

	mux := NewMultiplexer()
	events := testutil.CollectEvents(mux.Drain(context.Background(), handle), 2*time.Second)

	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	// Expected order: all tokens, then function calls, then end-of-run.
	require.Len(t, events, 4)
	assert.Equal(t, []string{"using tool", "done"}, testutil.TokenTexts(events))

	call, ok := events[2].(core.FunctionCallEvent)
	require.True(t, ok)
	assert.Equal(t, "Alpha", call.StepName)
	assert.Equal(t, "calculate_sum", call.Function)
	assert.Equal(t, "3", call.Response)

	assert.IsType(t, core.EndOfRunEvent{}, events[3])
}

func TestEngine_StartRejectsInvalidPlan(t *testing.T) {
	eng := newTestEngine(mapResolver(nil), telemetry.NewInMemorySink())

	_, err := eng.Start(context.Background(), core.Plan{WorkflowID: "wf"}, "in")
	assert.ErrorIs(t, err, core.ErrPlanInvalid)
}

func TestEngine_StartRejectsUnresolvableProducer(t *testing.T) {
	eng := newTestEngine(mapResolver(map[string]core.Producer{}), telemetry.NewInMemorySink())

	plan := testutil.NewPlanBuilder("wf-1").Step("Alpha").Build()
	_, err := eng.Start(context.Background(), plan, "in")
	assert.ErrorContains(t, err, "unknown agent")
}

func TestApplySchemaPolicy(t *testing.T) {
	schema := map[string]any{"type": "object"}
	own := map[string]any{"type": "array"}

	plan := testutil.NewPlanBuilder("wf-1").Step("A").Step("B").RunSchema(schema).Build()

	lastOnly := applySchemaPolicy(plan, SchemaPolicyLastStep)
	assert.Nil(t, lastOnly[0].OutputSchema)
	assert.Equal(t, schema, lastOnly[1].OutputSchema)

	all := applySchemaPolicy(plan, SchemaPolicyAllUnset)
	assert.Equal(t, schema, all[0].OutputSchema)
	assert.Equal(t, schema, all[1].OutputSchema)

	// A step's own schema always wins.
	withOwn := testutil.NewPlanBuilder("wf-1").Step("A").SchemaStep("B", own).RunSchema(schema).Build()
	kept := applySchemaPolicy(withOwn, SchemaPolicyLastStep)
	assert.Equal(t, own, kept[1].OutputSchema)

	// The plan itself is never mutated.
	assert.Nil(t, plan.Steps[0].OutputSchema)
}
