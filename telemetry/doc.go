// Package telemetry computes per-step cost/usage attribution and hands one
// record per started step to a pluggable sink. Recording is driven by step
// completion (success, failure or error-boundary resolution), never by
// stream consumption, so a caller who stops reading cannot skip it. Delivery
// failures are logged, not retried; retry policy belongs to the sink.
package telemetry
