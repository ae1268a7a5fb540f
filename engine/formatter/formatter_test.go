package formatter_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/formatter"
	"github.com/nlapi/orchestra/engine/llmgateway"
)

type fakeGateway struct {
	content string
	err     error
}

func (f *fakeGateway) Chat(_ context.Context, _ llmgateway.ChatRequest) (*llmgateway.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmgateway.ChatResponse{Content: f.content}, nil
}

func TestFormatter_Format(t *testing.T) {
	t.Run("Should return the model's summary and the decoded visual payload", func(t *testing.T) {
		f := formatter.New(&fakeGateway{content: "  Found 2 pets.  "})
		formatted, visual, err := f.Format(context.Background(), json.RawMessage(`{"items":[1,2]}`), "GET /pets")
		require.NoError(t, err)
		assert.Equal(t, "Found 2 pets.", formatted)
		assert.Equal(t, map[string]any{"items": []any{float64(1), float64(2)}}, visual)
	})

	t.Run("Should fall back to a plain summary when the LLM call fails", func(t *testing.T) {
		f := formatter.New(&fakeGateway{err: errors.New("provider unavailable")})
		formatted, _, err := f.Format(context.Background(), json.RawMessage(`{"ok":true}`), "GET /pets")
		require.NoError(t, err)
		assert.Equal(t, "Request completed via GET /pets.", formatted)
	})

	t.Run("Should fall back without calling the gateway when there is no data", func(t *testing.T) {
		f := formatter.New(&fakeGateway{err: errors.New("should not be called")})
		formatted, visual, err := f.Format(context.Background(), nil, "GET /pets")
		require.NoError(t, err)
		assert.Equal(t, "Request completed via GET /pets.", formatted)
		assert.Nil(t, visual)
	})

	t.Run("Should work with a nil gateway", func(t *testing.T) {
		f := formatter.New(nil)
		formatted, _, err := f.Format(context.Background(), json.RawMessage(`{"ok":true}`), "")
		require.NoError(t, err)
		assert.Equal(t, "Request completed.", formatted)
	})
}
