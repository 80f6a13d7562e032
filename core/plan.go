package core

import "fmt"

// StepSpec describes a single workflow step within a Plan. It is immutable
// once the Plan is built; the engine never mutates it mid-run.
type StepSpec struct {
	// ID is the stable identifier of the step (typically the persisted
	// workflow-step id).
	ID string `json:"id"`
	// AgentName is the human-readable name of the agent backing the step.
	// Stream events are tagged with this name.
	AgentName string `json:"agent_name"`
	// AgentID is the persisted identity of the backing agent definition.
	AgentID string `json:"agent_id"`
	// Model is the resolved provider model identifier used for cost
	// attribution.
	Model string `json:"model"`
	// Position is the zero-based plan position. Positions are contiguous.
	Position int `json:"position"`
	// OutputSchema is an optional JSON Schema document the step's final
	// output must conform to. When set, raw tokens are buffered and the
	// parsed value is re-emitted as line-delimited fragments instead.
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	// Streaming indicates whether token-level streaming is enabled for this
	// run. Schema-bearing steps buffer regardless.
	Streaming bool `json:"streaming"`
}

// HasOutputSchema reports whether the step declared a structured output schema.
func (s StepSpec) HasOutputSchema() bool { return len(s.OutputSchema) > 0 }

// Plan is the immutable, ordered sequence of step specifications for one
// invocation. It is created once per request by a plan builder and owned by
// the run coordinator; it is safe to share read-only across goroutines.
type Plan struct {
	// WorkflowID identifies the workflow definition the plan was built from.
	WorkflowID string `json:"workflow_id"`
	// SessionID scopes the run for history and telemetry attribution.
	SessionID string `json:"session_id"`
	// CallerID identifies the invoking principal for telemetry attribution.
	CallerID string `json:"caller_id"`
	// Steps are the ordered step specifications. Positions are contiguous
	// from 0 and a step may depend only on strictly earlier steps' outputs.
	Steps []StepSpec `json:"steps"`
	// RunSchema is an optional run-level output schema. How it is applied to
	// schema-less steps is decided by the engine's schema policy.
	RunSchema map[string]any `json:"run_schema,omitempty"`
}

// Len returns the number of steps in the plan.
func (p Plan) Len() int { return len(p.Steps) }

// Validate checks the structural invariants of the plan: at least one step
// and contiguous positions starting at zero.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrPlanInvalid)
	}
	for i, s := range p.Steps {
		if s.Position != i {
			return fmt.Errorf("%w: step %q at index %d has position %d", ErrPlanInvalid, s.ID, i, s.Position)
		}
	}
	return nil
}
