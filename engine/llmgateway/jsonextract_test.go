package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("Should extract a bare JSON object", func(t *testing.T) {
		out, err := ExtractJSON(`{"steps":[{"id":"s1"}]}`)
		require.NoError(t, err)
		assert.Equal(t, `{"steps":[{"id":"s1"}]}`, out)
	})

	t.Run("Should strip surrounding prose and markdown fences", func(t *testing.T) {
		out, err := ExtractJSON("Here is the plan:\n```json\n{\"steps\":[]}\n```\nLet me know if that works.")
		require.NoError(t, err)
		assert.Equal(t, `{"steps":[]}`, out)
	})

	t.Run("Should ignore braces inside string values", func(t *testing.T) {
		out, err := ExtractJSON(`{"summary":"uses {curly} braces"}`)
		require.NoError(t, err)
		assert.Equal(t, `{"summary":"uses {curly} braces"}`, out)
	})

	t.Run("Should extract a top-level array", func(t *testing.T) {
		out, err := ExtractJSON("[1, 2, 3]")
		require.NoError(t, err)
		assert.Equal(t, "[1, 2, 3]", out)
	})

	t.Run("Should return the largest of two candidate JSON regions, not the first", func(t *testing.T) {
		out, err := ExtractJSON(`Here's an example: {"foo":1} Final answer: {"steps":[{"endpoint":"GET /pets","params":{}}]}`)
		require.NoError(t, err)
		assert.Equal(t, `{"steps":[{"endpoint":"GET /pets","params":{}}]}`, out)
	})

	t.Run("Should error when no JSON is present", func(t *testing.T) {
		_, err := ExtractJSON("no json here at all")
		require.Error(t, err)
	})

	t.Run("Should error on unbalanced braces", func(t *testing.T) {
		_, err := ExtractJSON(`{"steps": [`)
		require.Error(t, err)
	})
}
