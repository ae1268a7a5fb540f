package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/resolver"
)

type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return f.vector, f.err
}

func endpoint(method, path string, keywords, patterns []string) *metadata.Endpoint {
	return &metadata.Endpoint{
		ID:             core.NewID(),
		Method:         metadata.NormalizeMethod(method),
		Path:           path,
		Keywords:       keywords,
		IntentPatterns: patterns,
	}
}

func TestResolve_ScoresAboveThresholdPass(t *testing.T) {
	t.Run("Should return only endpoints above the relevance threshold", func(t *testing.T) {
		candidates := []*metadata.Endpoint{
			endpoint("GET", "/pets", []string{"pets", "list"}, []string{"list all pets", "show pets"}),
			endpoint("POST", "/invoices", []string{"invoices", "billing"}, []string{"create an invoice"}),
		}
		result, err := resolver.Resolve(context.Background(), nil, "show me the list of pets", candidates)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, "/pets", result[0].Endpoint.Path)
	})
}

func TestResolve_FailsOpenWhenNothingPasses(t *testing.T) {
	t.Run("Should return the full scored catalog when nothing clears the threshold", func(t *testing.T) {
		candidates := []*metadata.Endpoint{
			endpoint("GET", "/widgets", nil, nil),
			endpoint("GET", "/gadgets", nil, nil),
		}
		result, err := resolver.Resolve(context.Background(), nil, "xyz", candidates)
		require.NoError(t, err)
		assert.Len(t, result, 2)
	})
}

func TestResolve_TieBreaksDeterministically(t *testing.T) {
	t.Run("Should break score ties by method and path", func(t *testing.T) {
		candidates := []*metadata.Endpoint{
			endpoint("GET", "/zz", nil, nil),
			endpoint("GET", "/aa", nil, nil),
		}
		result, err := resolver.Resolve(context.Background(), nil, "xyz", candidates)
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, "/aa", result[0].Endpoint.Path)
		assert.Equal(t, "/zz", result[1].Endpoint.Path)
	})
}

func TestResolve_ContinuesWhenEmbeddingFails(t *testing.T) {
	t.Run("Should still score keyword/intent signals when the embedder errors", func(t *testing.T) {
		candidates := []*metadata.Endpoint{
			endpoint("GET", "/pets", []string{"pets"}, []string{"list pets"}),
		}
		embedder := &fakeEmbedder{err: assertError("embedding service unavailable")}
		result, err := resolver.Resolve(context.Background(), embedder, "list pets please", candidates)
		require.NoError(t, err)
		require.Len(t, result, 1)
	})
}

type assertError string

func (e assertError) Error() string { return string(e) }
