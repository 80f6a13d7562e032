// Package store persists workflow, step and agent definitions and turns them
// into executable plans.
//
// Two Store implementations are provided: InMemoryStore for tests and
// ephemeral demo servers, and SQLiteStore for durable single-node
// deployments. PlanBuilder resolves stored definitions, per-request schema
// overrides and model-name mapping into a core.Plan ready for the engine.
// Definitions can also be seeded from YAML manifests via LoadWorkflowFile.
package store
