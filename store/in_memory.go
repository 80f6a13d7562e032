package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a volatile Store implementation keeping definitions in
// process local maps. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned value is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	steps     map[string]*WorkflowStep
	agents    map[string]*AgentDef
}

// NewInMemoryStore constructs an empty in-memory definition store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]*Workflow),
		steps:     make(map[string]*WorkflowStep),
		agents:    make(map[string]*AgentDef),
	}
}

// CreateWorkflow stores a new workflow definition.
func (s *InMemoryStore) CreateWorkflow(_ context.Context, wf *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	clone := *wf
	s.workflows[wf.ID] = &clone
	return nil
}

// GetWorkflow returns a clone of the stored workflow or ErrNotFound.
func (s *InMemoryStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *wf
	return &clone, nil
}

// ListWorkflows returns all workflows ordered by creation time.
func (s *InMemoryStore) ListWorkflows(_ context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, *wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateWorkflow overwrites an existing workflow definition.
func (s *InMemoryStore) UpdateWorkflow(_ context.Context, wf *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[wf.ID]
	if !ok {
		return ErrNotFound
	}
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now()
	clone := *wf
	s.workflows[wf.ID] = &clone
	return nil
}

// DeleteWorkflow removes a workflow and its steps.
func (s *InMemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	for stepID, step := range s.steps {
		if step.WorkflowID == id {
			delete(s.steps, stepID)
		}
	}
	return nil
}

// AddStep stores a new workflow step.
func (s *InMemoryStore) AddStep(_ context.Context, step *WorkflowStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[step.WorkflowID]; !ok {
		return ErrNotFound
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}
	clone := *step
	s.steps[step.ID] = &clone
	return nil
}

// ListSteps returns a workflow's steps ordered by position.
func (s *InMemoryStore) ListSteps(_ context.Context, workflowID string) ([]WorkflowStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WorkflowStep
	for _, step := range s.steps {
		if step.WorkflowID == workflowID {
			out = append(out, *step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// DeleteStep removes a step by id.
func (s *InMemoryStore) DeleteStep(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[id]; !ok {
		return ErrNotFound
	}
	delete(s.steps, id)
	return nil
}

// CreateAgent stores a new agent definition.
func (s *InMemoryStore) CreateAgent(_ context.Context, agent *AgentDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	clone := cloneAgent(agent)
	s.agents[agent.ID] = clone
	return nil
}

// GetAgent returns a clone of the stored agent or ErrNotFound.
func (s *InMemoryStore) GetAgent(_ context.Context, id string) (*AgentDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAgent(agent), nil
}

// ListAgents returns all agents ordered by creation time.
func (s *InMemoryStore) ListAgents(_ context.Context) ([]AgentDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentDef, 0, len(s.agents))
	for _, agent := range s.agents {
		out = append(out, *cloneAgent(agent))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteAgent removes an agent by id.
func (s *InMemoryStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// Close implements Store; no resources to release.
func (s *InMemoryStore) Close() error { return nil }

func cloneAgent(a *AgentDef) *AgentDef {
	clone := *a
	if a.OutputSchema != nil {
		clone.OutputSchema = make(map[string]any, len(a.OutputSchema))
		for k, v := range a.OutputSchema {
			clone.OutputSchema[k] = v
		}
	}
	if a.Metadata != nil {
		clone.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
