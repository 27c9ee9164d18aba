package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("json code block", func(t *testing.T) {
		response := "Here is the result:\n```json\n{\"intent\": \"control_lookup\"}\n```\nDone."
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"intent": "control_lookup"}`, got)
	})

	t.Run("untagged code block", func(t *testing.T) {
		response := "```\n{\"a\": 1}\n```"
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 1}`, got)
	})

	t.Run("non-json code block is skipped", func(t *testing.T) {
		response := "```python\nprint('hi')\n```\n{\"a\": 2}"
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": 2}`, got)
	})

	t.Run("raw object in prose", func(t *testing.T) {
		response := `The classification is {"type": "iso_27001", "confidence": 0.9} based on headings.`
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type": "iso_27001", "confidence": 0.9}`, got)
	})

	t.Run("raw array", func(t *testing.T) {
		response := `Controls: [{"id": "A.5.1"}, {"id": "A.5.2"}]`
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id": "A.5.1"}, {"id": "A.5.2"}]`, got)
	})

	t.Run("nested braces inside strings", func(t *testing.T) {
		response := `{"description": "use {placeholders} like } this", "ok": true}`
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"description": "use {placeholders} like } this", "ok": true}`, got)
	})

	t.Run("escaped quotes", func(t *testing.T) {
		response := `{"title": "the \"A.5\" control"}`
		got, err := ExtractJSON(response)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title": "the \"A.5\" control"}`, got)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ExtractJSON("I could not determine the answer.")
		assert.Error(t, err)
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		_, err := ExtractJSON(`{"broken": `)
		assert.Error(t, err)
	})
}

func TestExtractJSONAs(t *testing.T) {
	type classification struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	}

	t.Run("typed extraction", func(t *testing.T) {
		got, err := ExtractJSONAs[classification]("```json\n{\"type\": \"nist_csf\", \"confidence\": 0.8}\n```")
		require.NoError(t, err)
		assert.Equal(t, "nist_csf", got.Type)
		assert.InDelta(t, 0.8, got.Confidence, 0.001)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ExtractJSONAs[classification](`{"type": 42}`)
		assert.Error(t, err)
	})
}
