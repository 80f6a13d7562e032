package core

import "time"

// RunStatus is the terminal (or in-flight) status of a step or run.
type RunStatus string

const (
	// StatusPending marks a step that has been scheduled but not started.
	StatusPending RunStatus = "pending"
	// StatusRunning marks a step whose producer is active.
	StatusRunning RunStatus = "running"
	// StatusSucceeded marks a step that completed with a final output.
	StatusSucceeded RunStatus = "succeeded"
	// StatusFailed marks a step whose producer reported an error.
	StatusFailed RunStatus = "failed"
	// StatusNotRun marks a step that never launched because an earlier step
	// failed or the run was cancelled first. Distinct from StatusFailed.
	StatusNotRun RunStatus = "not_run"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusNotRun:
		return true
	default:
		return false
	}
}

// TokenUsage captures token accounting for one step's model traffic.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another sample.
func (u *TokenUsage) Add(o TokenUsage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// ToolInvocation records one intermediate tool call made while producing a
// step's output: the tool name, its serialized input and the tool's response.
type ToolInvocation struct {
	Tool     string `json:"tool"`
	Input    string `json:"input"`
	Response string `json:"response"`
}

// StepResult is the final, durable outcome of one step. It is created by the
// step executor exactly once, mutated only during that step's execution and
// read-only afterward. The coordinator owns it as part of the RunResult.
type StepResult struct {
	StepID    string    `json:"step_id"`
	AgentName string    `json:"agent_name"`
	Status    RunStatus `json:"status"`
	// Output is the final textual output. For schema-bearing steps whose
	// output parsed successfully, Parsed carries the structured value and
	// Output the original text.
	Output string `json:"output"`
	// Parsed is the structured output for schema-bearing steps, nil
	// otherwise or when parsing degraded.
	Parsed any `json:"parsed,omitempty"`
	// ParseError records a soft schema-parse failure. It does not fail the
	// step; it exists for diagnostics only.
	ParseError string `json:"parse_error,omitempty"`
	// IntermediateSteps is the ordered tool-call trace recorded by the
	// producer.
	IntermediateSteps []ToolInvocation `json:"intermediate_steps,omitempty"`
	// Error carries the producer failure when Status is StatusFailed.
	Error string `json:"error,omitempty"`
	// Usage is the token accounting reported by the producer.
	Usage TokenUsage `json:"usage"`
	// StartedAt / FinishedAt bound the step's execution window. Zero for
	// steps that never ran.
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Succeeded reports whether the step completed successfully. Schema parse
// failures are soft and do not negate success.
func (r StepResult) Succeeded() bool { return r.Status == StatusSucceeded }

// Duration returns the step's wall-clock execution time, zero if it never ran.
func (r StepResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunResult is the ordered aggregation of all StepResults for one invocation.
// Every plan position has exactly one slot; positions after a failing step
// carry StatusNotRun with zero output.
type RunResult struct {
	RunID      string       `json:"run_id"`
	WorkflowID string       `json:"workflow_id"`
	SessionID  string       `json:"session_id"`
	Status     RunStatus    `json:"status"`
	Steps      []StepResult `json:"steps"`
	// Output is the final output of the last completed step, forwarded as
	// the run's overall answer.
	Output string `json:"output"`
}

// FailedStep returns the first failed step result, if any.
func (r RunResult) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return s, true
		}
	}
	return StepResult{}, false
}
