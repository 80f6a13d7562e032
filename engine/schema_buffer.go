package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/flowmesh/core"
)

// schemaBuffer wraps a step's public TokenStream when the step declares a
// structured output schema. Instead of forwarding raw tokens, it accumulates
// every fragment and, only once the producer completes, parses the
// accumulated text as JSON, validates it against the declared schema and
// re-emits the re-serialized value as line-delimited fragments. A parse or
// validation failure degrades to a single empty object fragment; the step is
// never failed by it.
type schemaBuffer struct {
	schema  map[string]any
	stream  *core.TokenStream
	forward bool
	buf     strings.Builder
}

func newSchemaBuffer(schema map[string]any, stream *core.TokenStream, forward bool) *schemaBuffer {
	return &schemaBuffer{schema: schema, stream: stream, forward: forward}
}

// append accumulates one raw fragment. Nothing is emitted until flush.
func (b *schemaBuffer) append(fragment string) {
	b.buf.WriteString(fragment)
}

// flush parses the accumulated text (falling back to the producer's final
// output when no fragments were streamed), validates it and emits the
// parsed value line by line to bound the size of any single emitted unit.
// On failure it emits exactly one empty object fragment and returns the
// parse error for diagnostics alongside an empty parsed value.
func (b *schemaBuffer) flush(fallback string) (any, error) {
	text := b.buf.String()
	if strings.TrimSpace(text) == "" {
		text = fallback
	}

	parsed, err := b.parse(text)
	if err != nil {
		if b.forward {
			b.push("{}")
		}
		return map[string]any{}, err
	}

	data, merr := json.Marshal(parsed)
	if merr != nil {
		if b.forward {
			b.push("{}")
		}
		return map[string]any{}, fmt.Errorf("reserialize parsed output: %w", merr)
	}

	if b.forward {
		for _, line := range strings.Split(string(data), "\n") {
			b.push(line)
		}
	}

	return parsed, nil
}

// parse decodes the text as JSON, tolerating markdown code fences and
// surrounding prose, then validates the value against the declared schema.
func (b *schemaBuffer) parse(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(extractJSON(text)), &value); err != nil {
		return nil, fmt.Errorf("parse structured output: %w", err)
	}

	if len(b.schema) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", anyDoc(b.schema)); err != nil {
			return nil, fmt.Errorf("add schema resource: %w", err)
		}
		schema, err := compiler.Compile("schema.json")
		if err != nil {
			return nil, fmt.Errorf("compile schema: %w", err)
		}
		if err := schema.Validate(value); err != nil {
			return nil, fmt.Errorf("validate structured output: %w", err)
		}
	}

	return value, nil
}

// push forwards one fragment, ignoring a stream already forced closed by the
// error boundary.
func (b *schemaBuffer) push(line string) {
	_ = b.stream.Push(line)
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the outermost JSON object or array when one is present.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}

// anyDoc converts a schema document to the generic form the compiler
// expects, round-tripping through JSON so map types normalize.
func anyDoc(schema map[string]any) any {
	data, err := json.Marshal(schema)
	if err != nil {
		return schema
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return schema
	}
	return doc
}
