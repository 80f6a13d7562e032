package core

import (
	"errors"
	"testing"
)

func TestPlan_Validate(t *testing.T) {
	empty := Plan{WorkflowID: "wf"}
	if err := empty.Validate(); !errors.Is(err, ErrPlanInvalid) {
		t.Fatalf("expected ErrPlanInvalid for empty plan, got %v", err)
	}

	gapped := Plan{
		WorkflowID: "wf",
		Steps: []StepSpec{
			{ID: "s0", Position: 0},
			{ID: "s2", Position: 2},
		},
	}
	if err := gapped.Validate(); !errors.Is(err, ErrPlanInvalid) {
		t.Fatalf("expected ErrPlanInvalid for gapped positions, got %v", err)
	}

	valid := Plan{
		WorkflowID: "wf",
		Steps: []StepSpec{
			{ID: "s0", Position: 0},
			{ID: "s1", Position: 1},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}
}

func TestStepSpec_HasOutputSchema(t *testing.T) {
	plain := StepSpec{ID: "s0"}
	if plain.HasOutputSchema() {
		t.Fatal("expected no schema")
	}

	withSchema := StepSpec{ID: "s1", OutputSchema: map[string]any{"type": "object"}}
	if !withSchema.HasOutputSchema() {
		t.Fatal("expected schema")
	}
}
