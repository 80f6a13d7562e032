package telemetry

import "github.com/hupe1980/flowmesh/core"

// ModelPrice is the per-million-token pricing for one model, in USD.
type ModelPrice struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// CostBreakdown is the computed USD cost attribution for one step.
type CostBreakdown struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
	Total      float64 `json:"total"`
}

// PriceTable maps provider model identifiers to pricing. Unknown models cost
// zero; usage counters are still recorded.
type PriceTable map[string]ModelPrice

// DefaultPriceTable covers the models FlowMesh resolves out of the box.
// Prices change; override via RecorderOptions when accuracy matters.
var DefaultPriceTable = PriceTable{
	"gpt-4o":                    {PromptPerMillion: 2.50, CompletionPerMillion: 10.00},
	"gpt-4o-mini":               {PromptPerMillion: 0.15, CompletionPerMillion: 0.60},
	"gpt-4-turbo":               {PromptPerMillion: 10.00, CompletionPerMillion: 30.00},
	"gpt-3.5-turbo":             {PromptPerMillion: 0.50, CompletionPerMillion: 1.50},
	"claude-sonnet-4-20250514":  {PromptPerMillion: 3.00, CompletionPerMillion: 15.00},
	"claude-3-5-haiku-20241022": {PromptPerMillion: 0.80, CompletionPerMillion: 4.00},
	"claude-3-opus-20240229":    {PromptPerMillion: 15.00, CompletionPerMillion: 75.00},
}

// Cost computes the USD breakdown for the given model and usage.
func (t PriceTable) Cost(model string, usage core.TokenUsage) CostBreakdown {
	price, ok := t[model]
	if !ok {
		return CostBreakdown{}
	}
	prompt := float64(usage.PromptTokens) / 1e6 * price.PromptPerMillion
	completion := float64(usage.CompletionTokens) / 1e6 * price.CompletionPerMillion
	return CostBreakdown{
		Prompt:     prompt,
		Completion: completion,
		Total:      prompt + completion,
	}
}
