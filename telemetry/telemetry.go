package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// RunInfo carries the run-scoped identifiers stamped onto every record.
type RunInfo struct {
	RunID      string
	WorkflowID string
	SessionID  string
	CallerID   string
}

// Record is the cost/usage attribution for one step. It is emitted exactly
// once per started step and never mutated after emission; the sink owns it
// after hand-off.
type Record struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	WorkflowID string          `json:"workflow_id"`
	SessionID  string          `json:"session_id"`
	CallerID   string          `json:"caller_id"`
	StepID     string          `json:"step_id"`
	AgentID    string          `json:"agent_id"`
	AgentName  string          `json:"agent_name"`
	Model      string          `json:"model"`
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Error      string          `json:"error,omitempty"`
	Usage      core.TokenUsage `json:"usage"`
	Cost       CostBreakdown   `json:"cost"`
	Duration   time.Duration   `json:"duration"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Sink receives each Record exactly once. Implementations must be safe for
// concurrent use.
type Sink interface {
	Deliver(ctx context.Context, rec Record) error
}

// NoOpSink discards records. Default when no analytics backend is wired.
type NoOpSink struct{}

// Deliver implements Sink.
func (NoOpSink) Deliver(context.Context, Record) error { return nil }

// LogSink writes records through a logging.Logger, useful for local
// development and as a delivery-of-last-resort.
type LogSink struct {
	Logger logging.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, rec Record) error {
	s.Logger.Info("telemetry record",
		"run_id", rec.RunID,
		"step_id", rec.StepID,
		"agent", rec.AgentName,
		"model", rec.Model,
		"success", rec.Success,
		"tokens", rec.Usage.TotalTokens,
		"cost", rec.Cost.Total,
	)
	return nil
}

// InMemorySink buffers records in process memory. Safe for concurrent use;
// intended for tests and ephemeral demo servers.
type InMemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewInMemorySink constructs an empty in-memory sink.
func NewInMemorySink() *InMemorySink { return &InMemorySink{} }

// Deliver implements Sink.
func (s *InMemorySink) Deliver(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of all delivered records.
func (s *InMemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// RecorderOptions configure a Recorder.
type RecorderOptions struct {
	// Prices overrides the cost table. Defaults to DefaultPriceTable.
	Prices PriceTable
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Recorder computes cost/usage attribution and emits exactly one Record per
// started step, on both the success and the failure path.
type Recorder struct {
	sink   Sink
	prices PriceTable
	logger logging.Logger
}

// NewRecorder constructs a Recorder delivering to sink. A nil sink defaults
// to NoOpSink.
func NewRecorder(sink Sink, optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{
		Prices: DefaultPriceTable,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if sink == nil {
		sink = NoOpSink{}
	}

	return &Recorder{sink: sink, prices: opts.Prices, logger: opts.Logger}
}

// RecordStep builds and delivers the record for one resolved step. Failure
// records carry the error detail and a 500 status code instead of usage
// counters. A sink delivery failure is logged, never retried.
func (r *Recorder) RecordStep(ctx context.Context, run RunInfo, spec core.StepSpec, res core.StepResult) Record {
	rec := Record{
		ID:         core.NewID(),
		RunID:      run.RunID,
		WorkflowID: run.WorkflowID,
		SessionID:  run.SessionID,
		CallerID:   run.CallerID,
		StepID:     spec.ID,
		AgentID:    spec.AgentID,
		AgentName:  spec.AgentName,
		Model:      spec.Model,
		Duration:   res.Duration(),
		RecordedAt: time.Now().UTC(),
	}

	if res.Succeeded() {
		rec.Success = true
		rec.StatusCode = 200
		rec.Usage = res.Usage
		rec.Cost = r.prices.Cost(spec.Model, res.Usage)
	} else {
		rec.StatusCode = 500
		rec.Error = res.Error
	}

	if err := r.sink.Deliver(ctx, rec); err != nil {
		r.logger.Warn("telemetry delivery failed", "run_id", run.RunID, "step_id", spec.ID, "error", err)
	}

	return rec
}
