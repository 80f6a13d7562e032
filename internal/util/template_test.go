package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.name}}, use {{.model}}.", map[string]any{
		"name":  "world",
		"model": "gpt-4o",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world, use gpt-4o.", out)
}

func TestRenderTemplate_PassthroughWithoutMarkers(t *testing.T) {
	out, err := RenderTemplate("plain instructions", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain instructions", out)
}

func TestRenderTemplate_NoEscaping(t *testing.T) {
	out, err := RenderTemplate(`Reply with <b>{{.v}}</b> & "quotes".`, map[string]any{"v": "a < b"})
	require.NoError(t, err)
	assert.Equal(t, `Reply with <b>a < b</b> & "quotes".`, out)
}

func TestRenderTemplate_Functions(t *testing.T) {
	out, err := RenderTemplate(`{{upper .name}} {{default "fallback" .missing}}`, map[string]any{
		"name": "flow",
	})
	require.NoError(t, err)
	assert.Equal(t, "FLOW fallback", out)
}

func TestRenderTemplate_InvalidTemplate(t *testing.T) {
	_, err := RenderTemplate("{{.unclosed", nil)
	assert.Error(t, err)
}
