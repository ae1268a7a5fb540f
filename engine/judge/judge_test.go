package judge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/judge"
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

func TestJudge_IsSatisfied(t *testing.T) {
	t.Run("Should report satisfied on a YES answer", func(t *testing.T) {
		j := judge.New(&fakeGateway{content: "YES"})
		assert.True(t, j.IsSatisfied(context.Background(), "get my pet", []executor.StepResult{}))
	})

	t.Run("Should report not satisfied on a NO answer", func(t *testing.T) {
		j := judge.New(&fakeGateway{content: "NO, one more step is needed"})
		assert.False(t, j.IsSatisfied(context.Background(), "get my pet", []executor.StepResult{}))
	})

	t.Run("Should treat an LLM failure as not satisfied", func(t *testing.T) {
		j := judge.New(&fakeGateway{err: errors.New("provider unavailable")})
		assert.False(t, j.IsSatisfied(context.Background(), "get my pet", []executor.StepResult{}))
	})
}
