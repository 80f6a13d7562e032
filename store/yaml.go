package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flowmesh/core"
)

// WorkflowFile is the YAML manifest format for seeding definitions without
// going through the HTTP API.
//
// Example:
//
//	agents:
//	  - name: summarizer
//	    model: GPT_4_O_MINI
//	    instructions: Summarize the input in two sentences.
//	workflows:
//	  - name: digest
//	    description: Summarize then extract keywords.
//	    steps: [summarizer, keyworder]
type WorkflowFile struct {
	Agents    []AgentManifest    `yaml:"agents"`
	Workflows []WorkflowManifest `yaml:"workflows"`
}

// AgentManifest declares one agent definition in a manifest.
type AgentManifest struct {
	Name         string         `yaml:"name"`
	Model        string         `yaml:"model"`
	Instructions string         `yaml:"instructions"`
	OutputSchema map[string]any `yaml:"output_schema"`
	Metadata     map[string]any `yaml:"metadata"`
}

// WorkflowManifest declares one workflow with its step agents in order.
type WorkflowManifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Steps       []string `yaml:"steps"` // agent names in execution order
}

// LoadWorkflowFile parses a YAML manifest from disk.
func LoadWorkflowFile(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var file WorkflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return &file, nil
}

// Seed writes the manifest's agents and workflows into the store and returns
// the created workflow ids keyed by workflow name. Steps reference agents by
// name; unknown names fail the seed.
func (f *WorkflowFile) Seed(ctx context.Context, s Store) (map[string]string, error) {
	agentIDs := make(map[string]string, len(f.Agents))
	for _, a := range f.Agents {
		agent := &AgentDef{
			ID:           core.NewID(),
			Name:         a.Name,
			Model:        a.Model,
			Instructions: a.Instructions,
			OutputSchema: a.OutputSchema,
			Metadata:     a.Metadata,
		}
		if err := s.CreateAgent(ctx, agent); err != nil {
			return nil, fmt.Errorf("create agent %s: %w", a.Name, err)
		}
		agentIDs[a.Name] = agent.ID
	}

	workflowIDs := make(map[string]string, len(f.Workflows))
	for _, w := range f.Workflows {
		wf := &Workflow{
			ID:          core.NewID(),
			Name:        w.Name,
			Description: w.Description,
		}
		if err := s.CreateWorkflow(ctx, wf); err != nil {
			return nil, fmt.Errorf("create workflow %s: %w", w.Name, err)
		}

		for pos, agentName := range w.Steps {
			agentID, ok := agentIDs[agentName]
			if !ok {
				return nil, fmt.Errorf("workflow %s: unknown agent %q at step %d", w.Name, agentName, pos)
			}
			step := &WorkflowStep{
				ID:         core.NewID(),
				WorkflowID: wf.ID,
				AgentID:    agentID,
				Position:   pos,
			}
			if err := s.AddStep(ctx, step); err != nil {
				return nil, fmt.Errorf("add step %d to workflow %s: %w", pos, w.Name, err)
			}
		}

		workflowIDs[w.Name] = wf.ID
	}

	return workflowIDs, nil
}
