// Package flowmesh provides a high-level façade over the workflow engine and
// its collaborators (definition store, plan builder, telemetry & logging)
// enabling rapid construction of multi-step LLM pipelines. Most applications
// interact with this package by:
//  1. Creating a FlowMesh via New() (optionally overriding default in-memory services)
//  2. Registering one producer per agent name (model-backed or scripted)
//  3. Invoking workflows asynchronously (Invoke) or synchronously (InvokeSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable store
// implementation, a telemetry sink and a structured logger.
package flowmesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/engine"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/store"
	"github.com/hupe1980/flowmesh/telemetry"
)

// Options configures the FlowMesh instance.
type Options struct {
	// EngineConfig carries run-level tuning (buffers, schema policy, step timeout).
	EngineConfig engine.Config

	// Store holds workflow, step and agent definitions. Defaults to an
	// in-memory store.
	Store store.Store

	// TelemetrySink receives one record per resolved step. Defaults to a
	// no-op sink.
	TelemetrySink telemetry.Sink

	// Resolver overrides producer lookup entirely. When nil, producers
	// registered via RegisterProducer are matched by agent name.
	Resolver engine.ProducerResolver

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// FlowMesh is the high-level façade aggregating the engine and its services.
type FlowMesh struct {
	opts    Options
	engine  *engine.Engine
	mux     *engine.Multiplexer
	builder *store.PlanBuilder

	mu        sync.RWMutex
	producers map[string]core.Producer
}

// New creates a new FlowMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *FlowMesh {
	opts := Options{
		EngineConfig:  engine.DefaultConfig,
		Store:         store.NewInMemoryStore(),
		TelemetrySink: telemetry.NoOpSink{},
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	m := &FlowMesh{
		opts:      opts,
		builder:   store.NewPlanBuilder(opts.Store),
		producers: make(map[string]core.Producer),
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = m.resolveProducer
	}

	recorder := telemetry.NewRecorder(opts.TelemetrySink, func(o *telemetry.RecorderOptions) {
		o.Logger = opts.Logger
	})

	m.engine = engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Resolver = resolver
		o.Telemetry = recorder
		o.Logger = opts.Logger
	})

	m.mux = engine.NewMultiplexer(func(o *engine.MultiplexerOptions) {
		o.BufferSize = opts.EngineConfig.EventBufferSize
		o.Logger = opts.Logger
	})

	return m
}

// Store returns the definition store for direct CRUD access.
func (m *FlowMesh) Store() store.Store { return m.opts.Store }

// Engine returns the underlying engine, e.g. for wiring an HTTP handler.
func (m *FlowMesh) Engine() *engine.Engine { return m.engine }

// Multiplexer returns the event multiplexer used by Invoke.
func (m *FlowMesh) Multiplexer() *engine.Multiplexer { return m.mux }

// RegisterProducer binds a producer to an agent name. Steps referencing the
// name execute through it.
func (m *FlowMesh) RegisterProducer(agentName string, p core.Producer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producers[agentName] = p
}

// resolveProducer is the default ProducerResolver matching registered
// producers by agent name.
func (m *FlowMesh) resolveProducer(spec core.StepSpec) (core.Producer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.producers[spec.AgentName]
	if !ok {
		return nil, fmt.Errorf("no producer registered for agent %q", spec.AgentName)
	}
	return p, nil
}

// Invoke starts an asynchronous workflow run returning the run handle and
// the multiplexed fragment event stream.
func (m *FlowMesh) Invoke(
	ctx context.Context,
	workflowID string,
	req store.PlanRequest,
) (*engine.RunHandle, <-chan core.FragmentEvent, error) {
	plan, err := m.builder.Build(ctx, workflowID, req)
	if err != nil {
		return nil, nil, err
	}

	handle, err := m.engine.Start(ctx, *plan, req.Input)
	if err != nil {
		return nil, nil, err
	}

	return handle, m.mux.Drain(ctx, handle), nil
}

// InvokeSync is a synchronous helper that runs a workflow to completion and
// returns its result. The fragment stream is drained internally so per-step
// streams never block producers.
func (m *FlowMesh) InvokeSync(
	ctx context.Context,
	workflowID string,
	req store.PlanRequest,
) (core.RunResult, error) {
	handle, events, err := m.Invoke(ctx, workflowID, req)
	if err != nil {
		return core.RunResult{}, err
	}

	for range events {
	}

	return handle.Wait(ctx)
}

// Cancel aborts an active run by id.
func (m *FlowMesh) Cancel(runID string) error {
	return m.engine.Cancel(runID)
}
