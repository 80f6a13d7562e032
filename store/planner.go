package store

import (
	"context"
	"fmt"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/model"
)

// PlanRequest carries the per-invocation parameters applied on top of stored
// definitions when building a plan.
type PlanRequest struct {
	// Input is unused by the builder itself but carried by callers alongside
	// the plan; kept here so the invoke payload maps onto one struct.
	Input string
	// SessionID scopes the run. Session ids are namespaced per workflow.
	SessionID string
	// CallerID identifies the invoking principal for telemetry attribution.
	CallerID string
	// Streaming enables token-level fragment emission on every step.
	Streaming bool
	// StepSchemas overrides output schemas per step id.
	StepSchemas map[string]map[string]any
	// RunSchema is the optional run-level output schema.
	RunSchema map[string]any
}

// PlanBuilder resolves stored workflow, step and agent definitions into an
// executable core.Plan.
type PlanBuilder struct {
	store Store
}

// NewPlanBuilder creates a builder over the given store.
func NewPlanBuilder(store Store) *PlanBuilder {
	return &PlanBuilder{store: store}
}

// Build assembles the plan for a workflow: steps in position order, each
// carrying its agent's resolved model identifier and output schema.
// Per-request step schema overrides take precedence over stored agent
// schemas.
func (b *PlanBuilder) Build(ctx context.Context, workflowID string, req PlanRequest) (*core.Plan, error) {
	if _, err := b.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}

	steps, err := b.store.ListSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps for workflow %s: %w", workflowID, err)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	plan := &core.Plan{
		WorkflowID: workflowID,
		SessionID:  fmt.Sprintf("wf_%s_%s", workflowID, sessionID),
		CallerID:   req.CallerID,
		RunSchema:  req.RunSchema,
	}

	for i, step := range steps {
		agent, err := b.store.GetAgent(ctx, step.AgentID)
		if err != nil {
			return nil, fmt.Errorf("agent %s for step %s: %w", step.AgentID, step.ID, err)
		}

		schema := agent.OutputSchema
		if override, ok := req.StepSchemas[step.ID]; ok {
			schema = override
		}

		plan.Steps = append(plan.Steps, core.StepSpec{
			ID:           step.ID,
			AgentName:    agent.Name,
			AgentID:      agent.ID,
			Model:        model.Resolve(agent.Model, agent.Metadata),
			Position:     i,
			OutputSchema: schema,
			Streaming:    req.Streaming,
		})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}
