package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func TestPriceTable_Cost(t *testing.T) {
	usage := core.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000}

	cost := DefaultPriceTable.Cost("gpt-4o-mini", usage)
	assert.InDelta(t, 0.15, cost.Prompt, 1e-9)
	assert.InDelta(t, 0.30, cost.Completion, 1e-9)
	assert.InDelta(t, 0.45, cost.Total, 1e-9)

	unknown := DefaultPriceTable.Cost("some-unknown-model", usage)
	assert.Zero(t, unknown.Total)
}

func TestRecorder_SuccessRecord(t *testing.T) {
	sink := NewInMemorySink()
	rec := NewRecorder(sink)

	started := time.Now().Add(-250 * time.Millisecond)
	finished := time.Now()

	run := RunInfo{RunID: "run-1", WorkflowID: "wf-1", SessionID: "wf_wf-1_s", CallerID: "user-1"}
	spec := core.StepSpec{ID: "step-0", AgentID: "agent-0", AgentName: "Alpha", Model: "gpt-4o"}
	res := core.StepResult{
		StepID:     "step-0",
		Status:     core.StatusSucceeded,
		Output:     "done",
		Usage:      core.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		StartedAt:  started,
		FinishedAt: finished,
	}

	record := rec.RecordStep(context.Background(), run, spec, res)

	assert.True(t, record.Success)
	assert.Equal(t, 200, record.StatusCode)
	assert.Equal(t, "run-1", record.RunID)
	assert.Equal(t, "Alpha", record.AgentName)
	assert.Equal(t, 150, record.Usage.TotalTokens)
	assert.Greater(t, record.Cost.Total, 0.0)
	assert.Greater(t, record.Duration, time.Duration(0))

	require.Len(t, sink.Records(), 1)
}

func TestRecorder_FailureRecord(t *testing.T) {
	sink := NewInMemorySink()
	rec := NewRecorder(sink)

	res := core.StepResult{
		StepID: "step-0",
		Status: core.StatusFailed,
		Error:  "model unavailable",
		// Usage accumulated before the failure is intentionally dropped from
		// the record; failed calls are not billed.
		Usage: core.TokenUsage{TotalTokens: 10},
	}

	record := rec.RecordStep(context.Background(), RunInfo{RunID: "run-1"}, core.StepSpec{ID: "step-0", Model: "gpt-4o"}, res)

	assert.False(t, record.Success)
	assert.Equal(t, 500, record.StatusCode)
	assert.Equal(t, "model unavailable", record.Error)
	assert.Zero(t, record.Usage.TotalTokens)
	assert.Zero(t, record.Cost.Total)
}

func TestRecorder_NilSinkDefaultsToNoOp(t *testing.T) {
	rec := NewRecorder(nil)

	record := rec.RecordStep(context.Background(), RunInfo{}, core.StepSpec{}, core.StepResult{Status: core.StatusSucceeded})
	assert.True(t, record.Success)
}
