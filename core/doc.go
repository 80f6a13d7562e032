// Package core provides the foundational domain types and contracts used by
// FlowMesh. It defines the core abstractions for:
//
//   - Plans (immutable, ordered sequences of workflow step specifications)
//   - Step and run results (durable per-step outcomes plus their aggregation)
//   - Fragment events (the tagged units flowing through a multiplexed stream)
//   - TokenStream (single-producer/single-consumer fragment channel per step)
//   - Producer (the external step-runner collaborator that emits fragments)
//
// The package intentionally keeps implementation concerns (engine
// orchestration, persistence, transport encoding) out of scope, exposing
// small interfaces and value types so backends and adapters can be swapped
// without touching the orchestration engine.
package core
