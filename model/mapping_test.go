package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		metadata map[string]any
		want     string
	}{
		{
			name:  "known label",
			label: "GPT_4_O_MINI",
			want:  "gpt-4o-mini",
		},
		{
			name:  "claude label",
			label: "CLAUDE_HAIKU",
			want:  "claude-3-5-haiku-20241022",
		},
		{
			name:     "metadata override for unknown label",
			label:    "CUSTOM",
			metadata: map[string]any{"model": "gpt-4.1-nano"},
			want:     "gpt-4.1-nano",
		},
		{
			name:     "known label wins over metadata",
			label:    "GPT_4_O",
			metadata: map[string]any{"model": "something-else"},
			want:     "gpt-4o",
		},
		{
			name:  "unknown label passes through",
			label: "gpt-4o-2024-08-06",
			want:  "gpt-4o-2024-08-06",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.label, tt.metadata))
		})
	}
}
