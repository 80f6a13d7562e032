// Package engine implements the workflow step-orchestration and
// streaming-multiplexing core of FlowMesh.
//
// The Engine executes an ordered Plan of steps as one logical, cancellable
// run. Steps form a pipeline: each step's producer runs to completion before
// the next step launches, with the previous step's output forwarded as input.
// Fragment emission is concurrent with execution: a streaming consumer can
// drain a step's fragments while the run-task is still working.
//
// Key guarantees:
//   - Fragments within one step preserve producer emission order; across
//     steps the Multiplexer fully exhausts step i before emitting step i+1.
//   - Exactly one StepResult and at most one telemetry record exist per plan
//     position when the run finalizes, on success, failure and cancellation.
//   - Every fragment stream reaches a terminal state: no drain loop blocks
//     forever, even when a producer panics or the run is cancelled.
//   - Schema-bearing steps buffer tokens and re-emit the parsed value as
//     line-delimited fragments; a parse failure degrades softly and never
//     fails an otherwise successful step.
package engine
