package producer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/model"
	"github.com/hupe1980/flowmesh/tool"
)

func collect(fragments <-chan string, outcomes <-chan core.Outcome) ([]string, core.Outcome) {
	var frags []string
	for f := range fragments {
		frags = append(frags, f)
	}
	return frags, <-outcomes
}

func TestModelProducer_StreamsAndCompletes(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hi", "hello there")

	p := NewModelProducer("Echo", llm)

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Input: "hi", Stream: true})
	frags, out := collect(fragments, outcomes)

	require.NoError(t, out.Err)
	assert.Equal(t, "hello there", out.Output)
	assert.Equal(t, "hello there", strings.Join(frags, ""))
	assert.Positive(t, out.Usage.TotalTokens)
}

func TestModelProducer_NonStreaming(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.AddResponse("hi", "hello")

	p := NewModelProducer("Echo", llm)

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Input: "hi", Stream: false})
	frags, out := collect(fragments, outcomes)

	require.NoError(t, out.Err)
	assert.Equal(t, "hello", out.Output)
	assert.Empty(t, frags)
}

// toolCallingModel requests one tool call on the first round and answers with
// the tool's result on the second.
type toolCallingModel struct {
	calls int
}

func (m *toolCallingModel) Info() model.Info {
	return model.Info{Name: "tool-mock", Provider: "mock", SupportsTools: true}
}

func (m *toolCallingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		m.calls++
		if m.calls == 1 {
			respCh <- model.Response{
				ToolCalls: []model.ToolCall{
					{ID: "call-1", Name: "calculate_sum", Arguments: `{"a": 1, "b": 2}`},
				},
				FinishReason: "tool_calls",
				Usage:        &core.TokenUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10},
			}
			return
		}

		// Second round receives the tool result message.
		last := req.Messages[len(req.Messages)-1]
		respCh <- model.Response{
			Text:         "the sum is " + last.ToolResults[0].Content,
			FinishReason: "stop",
			Usage:        &core.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
	}()

	return respCh, errCh
}

func TestModelProducer_ExecutesToolCalls(t *testing.T) {
	sumTool := tool.NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	p := NewModelProducer("Calc", &toolCallingModel{}, func(o *ModelProducerOptions) {
		o.Tools = []tool.Tool{sumTool}
	})

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Input: "1+2?"})
	_, out := collect(fragments, outcomes)

	require.NoError(t, out.Err)
	assert.Equal(t, "the sum is 3", out.Output)

	// The executed call lands on the trace and usage spans both rounds.
	require.Len(t, out.ToolTrace, 1)
	assert.Equal(t, "calculate_sum", out.ToolTrace[0].Tool)
	assert.Equal(t, "3", out.ToolTrace[0].Response)
	assert.Equal(t, 25, out.Usage.TotalTokens)
}

func TestModelProducer_UnknownToolReportedToModel(t *testing.T) {
	p := NewModelProducer("Calc", &toolCallingModel{})

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Input: "1+2?"})
	_, out := collect(fragments, outcomes)

	// The missing tool is reported back as content, not a producer failure.
	require.NoError(t, out.Err)
	require.Len(t, out.ToolTrace, 1)
	assert.Contains(t, out.ToolTrace[0].Response, "not found")
}

func TestModelProducer_RendersInstructionTemplate(t *testing.T) {
	var seen string
	llm := &instructionCapturingModel{captured: &seen}

	p := NewModelProducer("Echo", llm, func(o *ModelProducerOptions) {
		o.Instructions = "Answer about {{.input}} using {{.model}}."
	})

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Input: "streams", Model: "gpt-4o"})
	_, out := collect(fragments, outcomes)

	require.NoError(t, out.Err)
	assert.Equal(t, "Answer about streams using gpt-4o.", seen)
}

type instructionCapturingModel struct {
	captured *string
}

func (m *instructionCapturingModel) Info() model.Info {
	return model.Info{Name: "capture", Provider: "mock"}
}

func (m *instructionCapturingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	*m.captured = req.Instructions
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	respCh <- model.Response{Text: "ok", FinishReason: "stop"}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func TestScriptedProducer_EmitsFragmentsThenOutcome(t *testing.T) {
	p := &ScriptedProducer{Fragments: []string{"a", "b"}}

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{Stream: true})
	frags, out := collect(fragments, outcomes)

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"a", "b"}, frags)
	assert.Equal(t, "ab", out.Output)
}

func TestScriptedProducer_Error(t *testing.T) {
	p := &ScriptedProducer{Err: errors.New("boom")}

	fragments, outcomes := p.Produce(context.Background(), core.ProduceRequest{})
	_, out := collect(fragments, outcomes)

	assert.EqualError(t, out.Err, "boom")
}

func TestScriptedProducer_BlockUntilCancelled(t *testing.T) {
	p := &ScriptedProducer{Block: true}

	ctx, cancel := context.WithCancel(context.Background())
	fragments, outcomes := p.Produce(ctx, core.ProduceRequest{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, out := collect(fragments, outcomes)
	assert.ErrorIs(t, out.Err, context.Canceled)
}
