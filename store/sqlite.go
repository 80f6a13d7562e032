package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite. Schemas and metadata are stored
// as JSON text columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases exist per connection; keep a single one so every
	// query sees the same schema.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			workflow_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			model TEXT NOT NULL,
			instructions TEXT,
			output_schema TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			step_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id) ON DELETE CASCADE,
			FOREIGN KEY (agent_id) REFERENCES agents(agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_workflow ON workflow_steps(workflow_id, position)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateWorkflow stores a new workflow definition.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (workflow_id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.Description, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// GetWorkflow retrieves a workflow by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	var description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, name, description, created_at, updated_at FROM workflows WHERE workflow_id = ?`,
		id).Scan(&wf.ID, &wf.Name, &description, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		wf.Description = description.String
	}
	return &wf, nil
}

// ListWorkflows lists all workflows ordered by creation time.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, name, description, created_at, updated_at FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []Workflow
	for rows.Next() {
		var wf Workflow
		var description sql.NullString
		if err := rows.Scan(&wf.ID, &wf.Name, &description, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			wf.Description = description.String
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow updates name and description of an existing workflow.
func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, wf *Workflow) error {
	wf.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, updated_at = ? WHERE workflow_id = ?`,
		wf.Name, wf.Description, wf.UpdatedAt, wf.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow; steps cascade.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE workflow_id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStep stores a new workflow step.
func (s *SQLiteStore) AddStep(ctx context.Context, step *WorkflowStep) error {
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (step_id, workflow_id, agent_id, position, created_at) VALUES (?, ?, ?, ?, ?)`,
		step.ID, step.WorkflowID, step.AgentID, step.Position, step.CreatedAt)
	return err
}

// ListSteps retrieves a workflow's steps ordered by position.
func (s *SQLiteStore) ListSteps(ctx context.Context, workflowID string) ([]WorkflowStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, workflow_id, agent_id, position, created_at FROM workflow_steps WHERE workflow_id = ? ORDER BY position`,
		workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []WorkflowStep
	for rows.Next() {
		var step WorkflowStep
		if err := rows.Scan(&step.ID, &step.WorkflowID, &step.AgentID, &step.Position, &step.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// DeleteStep removes a step by id.
func (s *SQLiteStore) DeleteStep(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE step_id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAgent stores a new agent definition.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *AgentDef) error {
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	schema, err := marshalNullable(agent.OutputSchema)
	if err != nil {
		return fmt.Errorf("marshal output schema: %w", err)
	}
	metadata, err := marshalNullable(agent.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, model, instructions, output_schema, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Model, agent.Instructions, schema, metadata, agent.CreatedAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*AgentDef, error) {
	var agent AgentDef
	var instructions, schema, metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, model, instructions, output_schema, metadata, created_at FROM agents WHERE agent_id = ?`,
		id).Scan(&agent.ID, &agent.Name, &agent.Model, &instructions, &schema, &metadata, &agent.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if instructions.Valid {
		agent.Instructions = instructions.String
	}
	if err := unmarshalNullable(schema, &agent.OutputSchema); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(metadata, &agent.Metadata); err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAgents lists all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]AgentDef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, model, instructions, output_schema, metadata, created_at FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []AgentDef
	for rows.Next() {
		var agent AgentDef
		var instructions, schema, metadata sql.NullString
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.Model, &instructions, &schema, &metadata, &agent.CreatedAt); err != nil {
			return nil, err
		}
		if instructions.Valid {
			agent.Instructions = instructions.String
		}
		if err := unmarshalNullable(schema, &agent.OutputSchema); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(metadata, &agent.Metadata); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent by id.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalNullable(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(src sql.NullString, dst *map[string]any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
