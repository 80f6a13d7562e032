package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/internal/util"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/model"
	"github.com/hupe1980/flowmesh/tool"
)

// ModelProducerOptions configures a ModelProducer instance.
//
// Use functional options with NewModelProducer to override defaults.
type ModelProducerOptions struct {
	// Instructions is the system prompt. It may contain text/template markers
	// which are rendered with the step input and model name before each run.
	Instructions string
	// Tools are the callable functions exposed to the model.
	Tools []tool.Tool
	// MaxToolRounds bounds the generate/execute loop. A round is one model
	// call; tool results feed the next round.
	MaxToolRounds int
	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration
	// Logger receives producer diagnostics.
	Logger logging.Logger
}

// ModelProducer turns step input into output by driving a language model,
// executing any tool calls the model requests along the way.
//
// It implements core.Producer:
//   - Partial text chunks are forwarded on the fragments channel as they
//     arrive from the model.
//   - Tool calls are executed sequentially and fed back to the model until a
//     round finishes without requesting tools (or MaxToolRounds is reached).
//   - The terminal Outcome carries the final text, the ordered tool trace
//     and usage accumulated over every round.
type ModelProducer struct {
	name          string
	llm           model.Model
	instructions  string
	tools         map[string]tool.Tool
	maxToolRounds int
	toolTimeout   time.Duration
	logger        logging.Logger
}

// NewModelProducer creates a producer for the given agent name and model.
//
// Defaults: a generic assistant instruction, no tools, 5 tool rounds and a
// 15 second per-tool timeout.
func NewModelProducer(name string, llm model.Model, optFns ...func(o *ModelProducerOptions)) *ModelProducer {
	opts := ModelProducerOptions{
		Instructions:  fmt.Sprintf("You are %s, a helpful AI assistant.", name),
		MaxToolRounds: 5,
		ToolTimeout:   15 * time.Second,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &ModelProducer{
		name:          name,
		llm:           llm,
		instructions:  opts.Instructions,
		tools:         tools,
		maxToolRounds: opts.MaxToolRounds,
		toolTimeout:   opts.ToolTimeout,
		logger:        opts.Logger,
	}
}

// Name returns the producer's agent name.
func (p *ModelProducer) Name() string { return p.name }

// RegisterTool adds a tool to the producer's capability set.
func (p *ModelProducer) RegisterTool(t tool.Tool) {
	p.tools[t.Name()] = t
}

// Produce implements core.Producer.
func (p *ModelProducer) Produce(ctx context.Context, req core.ProduceRequest) (<-chan string, <-chan core.Outcome) {
	fragments := make(chan string, 64)
	outcomes := make(chan core.Outcome, 1)

	go func() {
		out := p.run(ctx, req, fragments)
		close(fragments)
		outcomes <- out
		close(outcomes)
	}()

	return fragments, outcomes
}

func (p *ModelProducer) run(ctx context.Context, req core.ProduceRequest, fragments chan<- string) core.Outcome {
	instructions, err := util.RenderTemplate(p.instructions, map[string]any{
		"input": req.Input,
		"model": req.Model,
	})
	if err != nil {
		return core.Outcome{Err: fmt.Errorf("render instructions: %w", err)}
	}

	messages := []model.Message{{Role: "user", Text: req.Input}}
	toolDefs := p.toolDefinitions()

	var (
		usage core.TokenUsage
		trace []core.ToolInvocation
	)

	for round := 0; round < p.maxToolRounds; round++ {
		final, err := p.generate(ctx, model.Request{
			Instructions: instructions,
			Messages:     messages,
			Tools:        toolDefs,
			Stream:       req.Stream,
		}, fragments)
		if err != nil {
			return core.Outcome{ToolTrace: trace, Usage: usage, Err: err}
		}

		if final.Usage != nil {
			usage.Add(*final.Usage)
		}

		if len(final.ToolCalls) == 0 {
			return core.Outcome{Output: final.Text, ToolTrace: trace, Usage: usage}
		}

		messages = append(messages, model.Message{
			Role:      "assistant",
			Text:      final.Text,
			ToolCalls: final.ToolCalls,
		})

		results := make([]model.ToolResult, 0, len(final.ToolCalls))
		for _, call := range final.ToolCalls {
			content, inv := p.executeTool(ctx, call)
			trace = append(trace, inv)
			results = append(results, model.ToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Content: content,
			})
		}

		messages = append(messages, model.Message{Role: "tool", ToolResults: results})
	}

	return core.Outcome{
		ToolTrace: trace,
		Usage:     usage,
		Err:       fmt.Errorf("tool round limit (%d) reached without final response", p.maxToolRounds),
	}
}

// generate performs one model call, forwarding partial text chunks and
// returning the final response.
func (p *ModelProducer) generate(ctx context.Context, req model.Request, fragments chan<- string) (model.Response, error) {
	start := time.Now()

	respCh, errCh := p.llm.Generate(ctx, req)

	var final model.Response
	for resp := range respCh {
		if resp.Partial {
			if resp.Text != "" {
				select {
				case fragments <- resp.Text:
				case <-ctx.Done():
					return model.Response{}, ctx.Err()
				}
			}
			continue
		}
		final = resp
	}

	if err := <-errCh; err != nil {
		p.logger.Error("model call failed", "producer", p.name, "error", err)
		return model.Response{}, err
	}

	p.logger.Debug("model call complete",
		"producer", p.name,
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(final.ToolCalls),
	)

	return final, nil
}

// executeTool runs one requested tool call and records it on the trace.
// Tool failures are reported back to the model as content rather than
// aborting the run, matching how providers expect tool errors handled.
func (p *ModelProducer) executeTool(ctx context.Context, call model.ToolCall) (string, core.ToolInvocation) {
	inv := core.ToolInvocation{Tool: call.Name, Input: call.Arguments}

	t, exists := p.tools[call.Name]
	if !exists {
		inv.Response = fmt.Sprintf("Error: tool %s not found", call.Name)
		return inv.Response, inv
	}

	args := make(map[string]any)
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			inv.Response = fmt.Sprintf("Error: invalid tool arguments: %v", err)
			return inv.Response, inv
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, p.toolTimeout)
	defer cancel()

	result, err := t.Call(toolCtx, args)
	if err != nil {
		p.logger.Warn("tool call failed", "producer", p.name, "tool", call.Name, "error", err)
		inv.Response = fmt.Sprintf("Error: %v", err)
		return inv.Response, inv
	}

	inv.Response = stringifyResult(result)

	return inv.Response, inv
}

func (p *ModelProducer) toolDefinitions() []model.ToolDefinition {
	if len(p.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(p.tools))
	for _, t := range p.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func stringifyResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
