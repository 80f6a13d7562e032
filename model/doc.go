// Package model defines the normalized contract between FlowMesh producers
// and concrete language model providers. Adapters for OpenAI and Anthropic
// live in subpackages; the MockModel supports tests and examples without
// network access. Flows depend only on the Model interface so providers can
// be swapped per step.
package model
