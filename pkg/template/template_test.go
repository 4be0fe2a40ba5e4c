package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderReplacesPlaceholdersInNestedStructures(t *testing.T) {
	tmpl := map[string]any{
		"submission_id": "sub-{{trigger_id}}",
		"nested": map[string]any{
			"owner": "{{user_id}}",
			"tags":  []any{"{{scenario}}", "static"},
		},
	}

	context := map[string]string{
		"trigger_id": "msg-123",
		"user_id":    "alex",
		"scenario":   "underwriting-demo",
	}

	rendered := Render(tmpl, context)

	out, ok := rendered.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "sub-msg-123", out["submission_id"])

	nested, ok := out["nested"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "alex", nested["owner"])
	assert.Equal(t, []any{"underwriting-demo", "static"}, nested["tags"])
}

func TestRenderLeavesUnmatchedPlaceholdersVerbatim(t *testing.T) {
	rendered := Render("value is {{missing}}", map[string]string{})

	assert.Equal(t, "value is {{missing}}", rendered)
}

func TestRenderPassesNonStringLeavesThrough(t *testing.T) {
	tmpl := map[string]any{
		"score":   float64(640),
		"flag":    true,
		"nothing": nil,
	}

	rendered := Render(tmpl, map[string]string{"score": "999"})

	out, ok := rendered.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, float64(640), out["score"])
	assert.Equal(t, true, out["flag"])
	assert.Nil(t, out["nothing"])
}

func TestRenderResolvesDottedStepReferences(t *testing.T) {
	context := map[string]string{
		"intake.submission_id": "sub-42",
	}

	rendered := Render("scored {{intake.submission_id}}", context)

	assert.Equal(t, "scored sub-42", rendered)
}

func TestRenderDoesNotMutateInput(t *testing.T) {
	tmpl := map[string]any{"key": "{{value}}"}

	Render(tmpl, map[string]string{"value": "rendered"})

	assert.Equal(t, "{{value}}", tmpl["key"])
}

func TestRenderIsDeterministic(t *testing.T) {
	tmpl := map[string]any{"key": "{{value}}", "list": []any{"{{value}}"}}
	context := map[string]string{"value": "v"}

	first := Render(tmpl, context)
	second := Render(tmpl, context)

	assert.Equal(t, first, second)
}

func TestRenderHandlesWhitespaceInsidePlaceholders(t *testing.T) {
	rendered := Render("{{ trigger_id }}", map[string]string{"trigger_id": "msg-9"})

	assert.Equal(t, "msg-9", rendered)
}
