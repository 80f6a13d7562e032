package core

// FragmentEvent represents a tagged unit flowing through the multiplexed
// output stream of a run. Concrete event types implement the unexported
// isFragmentEvent marker enabling a closed set: token, parsed line, function
// call trace, error and end-of-run.
type FragmentEvent interface{ isFragmentEvent() }

// TokenEvent is a raw text fragment produced by a schema-less step, tagged
// with the owning step's identity. Fragments preserve producer emission order.
type TokenEvent struct {
	StepID    string `json:"step_id"`
	AgentName string `json:"agent_name"`
	Text      string `json:"text"`
}

// isFragmentEvent implements the FragmentEvent interface for TokenEvent.
func (TokenEvent) isFragmentEvent() {}

// ParsedLineEvent is one line of the re-serialized structured output of a
// schema-bearing step. Lines bound the size of any single emitted unit.
type ParsedLineEvent struct {
	StepID    string `json:"step_id"`
	AgentName string `json:"agent_name"`
	Line      string `json:"line"`
}

// isFragmentEvent implements the FragmentEvent interface for ParsedLineEvent.
func (ParsedLineEvent) isFragmentEvent() {}

// FunctionCallEvent surfaces one recorded tool invocation from a step's
// trace. These are only available once the step result is known, so they are
// always emitted after all token/line fragments of the run.
type FunctionCallEvent struct {
	StepName string `json:"step_name"`
	Function string `json:"function"`
	Args     string `json:"args"`
	Response string `json:"response"`
}

// isFragmentEvent implements the FragmentEvent interface for FunctionCallEvent.
func (FunctionCallEvent) isFragmentEvent() {}

// ErrorEvent carries a run failure to the streaming consumer. The multiplexer
// emits at most one per run, followed by an EndOfRunEvent.
type ErrorEvent struct {
	Message string `json:"message"`
}

// isFragmentEvent implements the FragmentEvent interface for ErrorEvent.
func (ErrorEvent) isFragmentEvent() {}

// EndOfRunEvent terminates the multiplexed stream. Exactly one is emitted per
// run, on both the success and the failure path.
type EndOfRunEvent struct{}

// isFragmentEvent implements the FragmentEvent interface for EndOfRunEvent.
func (EndOfRunEvent) isFragmentEvent() {}
