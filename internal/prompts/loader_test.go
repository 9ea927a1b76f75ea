package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_RelevancePrompts(t *testing.T) {
	keys, err := Keys("relevance.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"filter", "system"}, keys)

	filter, err := Get("relevance.json", "filter")
	require.NoError(t, err)
	assert.Contains(t, filter, "{{.Candidates}}")
	assert.Contains(t, filter, "{{.MaxKeywords}}")
}

func TestGet_Errors(t *testing.T) {
	_, err := Get("missing.json", "filter")
	assert.Error(t, err)

	_, err = Get("relevance.json", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestMustGet_Panics(t *testing.T) {
	assert.Panics(t, func() { MustGet("relevance.json", "nope") })
	assert.NotPanics(t, func() { MustGet("relevance.json", "system") })
}

func TestRender(t *testing.T) {
	out, err := Render("Категория: {{.Category}}, max {{ .Max }}", map[string]string{"Category": "Рейки", "Max": "25"})
	require.NoError(t, err)
	assert.Equal(t, "Категория: Рейки, max 25", out)

	_, err = Render("{{.A}} {{.B}} {{.A}}", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A, A, B")
}

func TestRender_AllRelevancePlaceholdersKnown(t *testing.T) {
	data := map[string]string{
		"Category": "c", "Purposes": "p", "Params": "x", "Description": "d",
		"Candidates": "k", "MaxKeywords": "5",
	}
	_, err := Render(MustGet("relevance.json", "filter"), data)
	assert.NoError(t, err)
}
