package testutil

import (
	"fmt"

	"github.com/hupe1980/flowmesh/core"
)

// PlanBuilder helps construct plans with fluent chaining for tests.
// Example:
//
//	plan := NewPlanBuilder("wf-1").
//		Step("Alpha").
//		SchemaStep("Beta", schema).
//		Build()
type PlanBuilder struct {
	workflowID string
	sessionID  string
	callerID   string
	runSchema  map[string]any
	steps      []core.StepSpec
}

// NewPlanBuilder creates a new builder for a plan on the given workflow id.
// Use chainable methods (Step, SchemaStep, RunSchema) then call Build.
func NewPlanBuilder(workflowID string) *PlanBuilder {
	return &PlanBuilder{
		workflowID: workflowID,
		sessionID:  fmt.Sprintf("wf_%s_test", workflowID),
	}
}

// Session overrides the session id (chainable).
func (b *PlanBuilder) Session(id string) *PlanBuilder {
	b.sessionID = id
	return b
}

// Caller sets the caller id (chainable).
func (b *PlanBuilder) Caller(id string) *PlanBuilder {
	b.callerID = id
	return b
}

// RunSchema sets the run-level output schema (chainable).
func (b *PlanBuilder) RunSchema(schema map[string]any) *PlanBuilder {
	b.runSchema = schema
	return b
}

// Step appends a streaming step for the named agent at the next position
// (chainable). The step id derives from the position.
func (b *PlanBuilder) Step(agentName string) *PlanBuilder {
	return b.SchemaStep(agentName, nil)
}

// SchemaStep appends a streaming step carrying an output schema (chainable).
func (b *PlanBuilder) SchemaStep(agentName string, schema map[string]any) *PlanBuilder {
	pos := len(b.steps)
	b.steps = append(b.steps, core.StepSpec{
		ID:           fmt.Sprintf("step-%d", pos),
		AgentName:    agentName,
		AgentID:      fmt.Sprintf("agent-%d", pos),
		Model:        "gpt-4o-mini",
		Position:     pos,
		OutputSchema: schema,
		Streaming:    true,
	})
	return b
}

// NonStreaming marks the most recently added step as non-streaming (chainable).
func (b *PlanBuilder) NonStreaming() *PlanBuilder {
	if len(b.steps) > 0 {
		b.steps[len(b.steps)-1].Streaming = false
	}
	return b
}

// Build returns the assembled core.Plan.
func (b *PlanBuilder) Build() core.Plan {
	return core.Plan{
		WorkflowID: b.workflowID,
		SessionID:  b.sessionID,
		CallerID:   b.callerID,
		Steps:      b.steps,
		RunSchema:  b.runSchema,
	}
}
