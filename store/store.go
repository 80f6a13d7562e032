package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a workflow, step or agent does not exist.
var ErrNotFound = errors.New("store: not found")

// Workflow is a stored pipeline definition. Its steps are kept separately
// and ordered by position.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowStep binds an agent into a workflow at a position. Positions are
// zero-based and contiguous within a workflow.
type WorkflowStep struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	AgentID    string    `json:"agent_id"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentDef is a stored agent definition: the model label, instructions and
// optional output schema a step producer is built from.
type AgentDef struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Model        string         `json:"model"` // provider-agnostic label, see model.Resolve
	Instructions string         `json:"instructions,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store persists workflow, step and agent definitions.
//
// Implementations must be safe for concurrent use. ListSteps returns steps
// ordered by position.
type Store interface {
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	AddStep(ctx context.Context, step *WorkflowStep) error
	ListSteps(ctx context.Context, workflowID string) ([]WorkflowStep, error)
	DeleteStep(ctx context.Context, id string) error

	CreateAgent(ctx context.Context, agent *AgentDef) error
	GetAgent(ctx context.Context, id string) (*AgentDef, error)
	ListAgents(ctx context.Context) ([]AgentDef, error)
	DeleteAgent(ctx context.Context, id string) error

	Close() error
}
