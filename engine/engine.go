package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/telemetry"
)

// SchemaPolicy decides how a run-level output schema applies to steps that
// did not declare their own.
type SchemaPolicy int

const (
	// SchemaPolicyLastStep applies the run-level schema only to the last
	// step when that step has no schema of its own.
	SchemaPolicyLastStep SchemaPolicy = iota
	// SchemaPolicyAllUnset applies the run-level schema to every step
	// lacking its own schema.
	SchemaPolicyAllUnset
)

// ProducerResolver supplies the external producer for a step. The engine
// treats producers as opaque async sources; resolution typically maps the
// step's agent definition onto a model-backed producer.
type ProducerResolver func(spec core.StepSpec) (core.Producer, error)

// Config defines tuning parameters for the Engine's operational behavior.
type Config struct {
	// EventBufferSize sets the channel buffer size for fragment streams and
	// the multiplexed event channel. Larger buffers reduce blocking but
	// increase memory usage.
	EventBufferSize int

	// SchemaPolicy controls run-level output schema application.
	SchemaPolicy SchemaPolicy

	// StepTimeout bounds a single step's execution. Zero disables the bound.
	StepTimeout time.Duration
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	EventBufferSize: 100,
	SchemaPolicy:    SchemaPolicyLastStep,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Resolver supplies producers per step. Required for Start to succeed.
	Resolver ProducerResolver

	// Telemetry receives exactly one record per started step. Defaults to a
	// recorder backed by a no-op sink.
	Telemetry *telemetry.Recorder

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Engine is the run coordinator: it launches the ordered execution of all
// plan steps as a single cancellable run-task, owns the per-step executors
// and guarantees result, stream-termination and telemetry invariants on
// every exit path. Public methods are safe for concurrent use.
type Engine struct {
	config    Config
	resolver  ProducerResolver
	telemetry *telemetry.Recorder
	logger    logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Telemetry: telemetry.NewRecorder(nil),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.EventBufferSize <= 0 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}

	return &Engine{
		config:     opts.Config,
		resolver:   opts.Resolver,
		telemetry:  opts.Telemetry,
		logger:     opts.Logger,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start validates the plan and launches the run-task in the background. It
// returns a RunHandle exposing the awaitable RunResult, the per-step fragment
// streams (for the streaming path) and a cancel operation. Startup failures
// (invalid plan, unresolvable producer) are returned synchronously; failures
// after launch surface through the handle.
func (e *Engine) Start(ctx context.Context, plan core.Plan, input string) (*RunHandle, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if e.resolver == nil {
		return nil, fmt.Errorf("engine has no producer resolver configured")
	}

	steps := applySchemaPolicy(plan, e.config.SchemaPolicy)

	runID := core.NewID()

	executors := make([]*stepExecutor, len(steps))
	for i, spec := range steps {
		producer, err := e.resolver(spec)
		if err != nil {
			return nil, fmt.Errorf("resolve producer for step %s: %w", spec.ID, err)
		}
		executors[i] = newStepExecutor(spec, producer, e.config.EventBufferSize)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.activeRuns[runID] = cancel
	e.mu.Unlock()

	handle := &RunHandle{
		runID:     runID,
		plan:      plan,
		executors: executors,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go e.runTask(runCtx, runID, plan, executors, handle, input)

	return handle, nil
}

// Cancel cancels a running run by ID. It is idempotent for in-flight runs;
// cancelling an unknown or finished run returns an error.
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	cancel, exists := e.activeRuns[runID]
	e.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// runTask executes the pipeline sequentially: step i's producer runs to
// completion and its output is forwarded before step i+1 launches. The
// deferred boundary converts panics into run errors, forces every still-open
// fragment stream to a terminal state, fires telemetry for started but
// unrecorded steps and resolves the handle exactly once.
func (e *Engine) runTask(
	ctx context.Context,
	runID string,
	plan core.Plan,
	executors []*stepExecutor,
	handle *RunHandle,
	input string,
) {
	var runErr error

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("run task panic: %v", r)
			e.logger.Error("run task panicked", "run_id", runID, "panic", r)
		}

		e.finalize(ctx, runID, plan, executors, handle, runErr)
	}()

	stepInput := input

	for _, ex := range executors {
		if ctx.Err() != nil {
			runErr = core.ErrRunCancelled
			break
		}

		res := e.runStep(ctx, ex, stepInput)

		if res.Status == core.StatusNotRun {
			// The producer was terminated by run cancellation. A cancelled
			// step is not a failed step and produces no telemetry record.
			runErr = core.ErrRunCancelled
			break
		}

		e.record(ctx, runID, plan, ex.spec, res)

		if res.Status == core.StatusFailed {
			runErr = fmt.Errorf("%w: step %s: %s", core.ErrStepFailed, ex.spec.ID, res.Error)
			e.logger.Error("step failed", "run_id", runID, "step_id", ex.spec.ID, "error", res.Error)
			break
		}

		e.logger.Debug("step completed", "run_id", runID, "step_id", ex.spec.ID, "tokens", res.Usage.TotalTokens)

		// Pipeline semantics: the step's output is forwarded verbatim as the
		// next step's input.
		stepInput = res.Output
	}
}

// runStep executes one step, applying the configured per-step timeout.
func (e *Engine) runStep(ctx context.Context, ex *stepExecutor, input string) core.StepResult {
	if e.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		defer cancel()
	}
	return ex.run(ctx, input)
}

// record emits exactly one telemetry record for a resolved step. Recording
// is driven by step completion, never by stream consumption, so a consumer
// that stops reading cannot skip it.
func (e *Engine) record(ctx context.Context, runID string, plan core.Plan, spec core.StepSpec, res core.StepResult) {
	e.telemetry.RecordStep(ctx, telemetry.RunInfo{
		RunID:      runID,
		WorkflowID: plan.WorkflowID,
		SessionID:  plan.SessionID,
		CallerID:   plan.CallerID,
	}, spec, res)
}

// finalize is the error boundary shared by the success, failure, cancellation
// and panic paths. It resolves every unresolved executor (closing its stream
// so no drain loop blocks), fires telemetry for steps that started but never
// reported, assembles the RunResult and completes the handle.
func (e *Engine) finalize(
	ctx context.Context,
	runID string,
	plan core.Plan,
	executors []*stepExecutor,
	handle *RunHandle,
	runErr error,
) {
	cancelledRun := errors.Is(runErr, core.ErrRunCancelled)

	for _, ex := range executors {
		res, newlyResolved := ex.forceResolve(runErr, cancelledRun)
		if newlyResolved && res.Status == core.StatusFailed {
			// The step started and died inside the boundary: telemetry still
			// fires with the captured error.
			e.record(ctx, runID, plan, ex.spec, res)
		}
	}

	results := make([]core.StepResult, len(executors))
	for i, ex := range executors {
		results[i] = ex.result()
	}

	status := core.StatusSucceeded
	var output string
	for _, r := range results {
		if r.Status == core.StatusFailed {
			status = core.StatusFailed
		}
		if r.Status == core.StatusSucceeded {
			output = r.Output
		}
	}
	if cancelledRun {
		status = core.StatusNotRun
	}

	handle.complete(core.RunResult{
		RunID:      runID,
		WorkflowID: plan.WorkflowID,
		SessionID:  plan.SessionID,
		Status:     status,
		Steps:      results,
		Output:     output,
	}, runErr)

	e.mu.Lock()
	delete(e.activeRuns, runID)
	e.mu.Unlock()

	e.logger.Info("run finalized", "run_id", runID, "status", status)
}

// applySchemaPolicy returns a copy of the plan's steps with the run-level
// schema applied to schema-less steps per policy. The plan itself is never
// mutated.
func applySchemaPolicy(plan core.Plan, policy SchemaPolicy) []core.StepSpec {
	steps := make([]core.StepSpec, len(plan.Steps))
	copy(steps, plan.Steps)

	if len(plan.RunSchema) == 0 {
		return steps
	}

	switch policy {
	case SchemaPolicyAllUnset:
		for i := range steps {
			if !steps[i].HasOutputSchema() {
				steps[i].OutputSchema = plan.RunSchema
			}
		}
	default:
		last := len(steps) - 1
		if !steps[last].HasOutputSchema() {
			steps[last].OutputSchema = plan.RunSchema
		}
	}

	return steps
}
