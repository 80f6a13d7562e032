package model

// Mapping translates the friendly model labels stored on agent definitions
// into provider model identifiers. Labels not present pass through untouched
// so fully qualified identifiers keep working.
var Mapping = map[string]string{
	"GPT_4_O":       "gpt-4o",
	"GPT_4_O_MINI":  "gpt-4o-mini",
	"GPT_4_TURBO":   "gpt-4-turbo",
	"GPT_3_5_TURBO": "gpt-3.5-turbo",
	"CLAUDE_SONNET": "claude-sonnet-4-20250514",
	"CLAUDE_HAIKU":  "claude-3-5-haiku-20241022",
	"CLAUDE_OPUS":   "claude-3-opus-20240229",
}

// Resolve maps a stored model label to a provider identifier, consulting the
// agent's metadata model override when the label is unknown.
func Resolve(label string, metadata map[string]any) string {
	if id, ok := Mapping[label]; ok {
		return id
	}
	if metadata != nil {
		if v, ok := metadata["model"].(string); ok && v != "" {
			return v
		}
	}
	return label
}
