package resolver

import (
	"context"
	"sort"

	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/pkg/logger"
)

// Resolve scores candidates against query and returns the subset scoring
// at or above relevanceThreshold (0.2), sorted by (score desc, method+path asc)
// for a deterministic tie-break. When no candidate passes the threshold,
// Resolve fails open and returns the full candidate list, each scored,
// so the planner still has something to work with (spec §4.4's
// "fail open to full catalog" rule).
func Resolve(ctx context.Context, embedder Embedder, query string, candidates []*metadata.Endpoint) ([]ScoredEndpoint, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var queryEmbedding []float64
	if embedder != nil {
		v, err := embedder.Embed(ctx, query)
		if err != nil {
			logger.FromContext(ctx).Warn("query embedding failed, continuing with keyword/intent signals only", "err", err)
		} else {
			queryEmbedding = v
		}
	}

	scored := make([]ScoredEndpoint, 0, len(candidates))
	for _, ep := range candidates {
		semantic := semanticScore(queryEmbedding, ep.EmbeddingVector)
		keyword := keywordScore(query, ep)
		intent := intentScore(query, ep)
		lengthBonus := 0.0
		if len(ep.PromptText) > lengthBonusMin {
			lengthBonus = weightLength
		}
		score := weightSemantic*semantic + weightKeyword*keyword + weightIntent*intent + lengthBonus
		if score > 1.1 {
			score = 1.1
		}
		scored = append(scored, ScoredEndpoint{Endpoint: ep, Score: score})
	}

	sortScored(scored)

	passing := make([]ScoredEndpoint, 0, len(scored))
	for _, s := range scored {
		if s.Score >= relevanceThreshold {
			passing = append(passing, s)
		}
	}
	if len(passing) == 0 {
		logger.FromContext(ctx).Info("no endpoint passed the relevance threshold, falling open to full catalog", "candidates", len(scored))
		return scored, nil
	}
	return passing, nil
}

func sortScored(scored []ScoredEndpoint) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		li, lj := scored[i].Endpoint.Label(), scored[j].Endpoint.Label()
		return li < lj
	})
}
