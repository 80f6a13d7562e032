package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	type input struct {
		Query string  `json:"query" description:"Search query"`
		Limit int     `json:"limit,omitempty"`
		Score float64 `json:"score"`
		Note  *string `json:"note"`
	}

	schema := CreateSchema(input{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "string", "description": "Search query"}, props["query"])
	assert.Equal(t, map[string]any{"type": "integer"}, props["limit"])
	assert.Equal(t, map[string]any{"type": "number"}, props["score"])

	// omitempty and pointer fields are optional.
	assert.ElementsMatch(t, []string{"query", "score"}, schema["required"])
}

func TestValidateParameters_RequiredFromJSON(t *testing.T) {
	// Schemas decoded from JSON carry required as []any.
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []any{"a"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"a": 1.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
}

func TestValidateParameters_IntegerAcceptsWholeFloat(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "integer"}},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"n": float64(3)}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"n": 3.5}, schema))
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "string"}},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"a": "x", "extra": true}, schema))
}
