package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func seedPlannerFixture(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.CreateWorkflow(ctx, &Workflow{ID: "wf-1", Name: "digest"}))
	require.NoError(t, s.CreateAgent(ctx, &AgentDef{
		ID:    "ag-draft",
		Name:  "Drafter",
		Model: "GPT_4_O_MINI",
	}))
	require.NoError(t, s.CreateAgent(ctx, &AgentDef{
		ID:           "ag-extract",
		Name:         "Extractor",
		Model:        "CLAUDE_HAIKU",
		OutputSchema: map[string]any{"type": "object"},
	}))
	require.NoError(t, s.AddStep(ctx, &WorkflowStep{ID: "st-0", WorkflowID: "wf-1", AgentID: "ag-draft", Position: 0}))
	require.NoError(t, s.AddStep(ctx, &WorkflowStep{ID: "st-1", WorkflowID: "wf-1", AgentID: "ag-extract", Position: 1}))

	return s
}

func TestPlanBuilder_Build(t *testing.T) {
	b := NewPlanBuilder(seedPlannerFixture(t))

	plan, err := b.Build(context.Background(), "wf-1", PlanRequest{
		SessionID: "sess-1",
		CallerID:  "user-1",
		Streaming: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "wf-1", plan.WorkflowID)
	assert.Equal(t, "wf_wf-1_sess-1", plan.SessionID)
	assert.Equal(t, "user-1", plan.CallerID)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, core.StepSpec{
		ID:        "st-0",
		AgentName: "Drafter",
		AgentID:   "ag-draft",
		Model:     "gpt-4o-mini",
		Position:  0,
		Streaming: true,
	}, plan.Steps[0])
	assert.Equal(t, "claude-3-5-haiku-20241022", plan.Steps[1].Model)
	assert.Equal(t, map[string]any{"type": "object"}, plan.Steps[1].OutputSchema)
}

func TestPlanBuilder_GeneratesSessionID(t *testing.T) {
	b := NewPlanBuilder(seedPlannerFixture(t))

	plan, err := b.Build(context.Background(), "wf-1", PlanRequest{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plan.SessionID, "wf_wf-1_"))
	assert.Greater(t, len(plan.SessionID), len("wf_wf-1_"))
}

func TestPlanBuilder_StepSchemaOverride(t *testing.T) {
	b := NewPlanBuilder(seedPlannerFixture(t))

	override := map[string]any{"type": "object", "title": "override"}
	plan, err := b.Build(context.Background(), "wf-1", PlanRequest{
		StepSchemas: map[string]map[string]any{"st-1": override},
	})
	require.NoError(t, err)

	assert.Equal(t, override, plan.Steps[1].OutputSchema)
}

func TestPlanBuilder_UnknownWorkflow(t *testing.T) {
	b := NewPlanBuilder(NewInMemoryStore())

	_, err := b.Build(context.Background(), "nope", PlanRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlanBuilder_EmptyWorkflowIsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.CreateWorkflow(ctx, &Workflow{ID: "wf-empty", Name: "empty"}))

	_, err := NewPlanBuilder(s).Build(ctx, "wf-empty", PlanRequest{})
	assert.ErrorIs(t, err, core.ErrPlanInvalid)
}
