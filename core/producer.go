package core

import "context"

// ProduceRequest is the resolved input handed to a step's producer: the
// merged caller input plus the previous step's forwarded output.
type ProduceRequest struct {
	// Input is the text input for this step.
	Input string `json:"input"`
	// Model is the resolved provider model identifier.
	Model string `json:"model"`
	// Stream requests token-level fragment emission. Producers may ignore it
	// and emit a single fragment.
	Stream bool `json:"stream"`
}

// Outcome is the terminal report of a producer: the final answer, the
// ordered tool-call trace, token accounting and the failure, if any.
type Outcome struct {
	Output    string
	ToolTrace []ToolInvocation
	Usage     TokenUsage
	Err       error
}

// Producer is the external step-runner collaborator. Given a step's resolved
// input it asynchronously emits text fragments and eventually reports a
// terminal Outcome. The engine treats it purely as an opaque async source.
//
// Contract (mirrors the channel-pair streaming convention used throughout
// FlowMesh):
//   - The fragments channel carries ordered text fragments and is closed by
//     the producer at end-of-stream.
//   - The outcome channel delivers exactly one Outcome after the fragments
//     channel closes, then is closed. Outcome.Err is non-nil on failure.
//   - Both channels must terminate on ctx cancellation; retry/backoff of
//     underlying model calls is the producer's responsibility, not the
//     engine's.
type Producer interface {
	Produce(ctx context.Context, req ProduceRequest) (<-chan string, <-chan Outcome)
}
