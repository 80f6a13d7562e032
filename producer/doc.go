// Package producer contains step producers: the collaborators that turn a
// step's resolved input into streamed text fragments and a terminal outcome.
//
// ModelProducer is the production implementation. It drives a model.Model,
// executes requested tool calls through the tool package and accumulates
// token usage and the tool trace across rounds. ScriptedProducer is a
// deterministic in-memory producer for tests and examples.
package producer
