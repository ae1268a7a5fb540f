package resolver

import (
	"math"
	"strings"

	"github.com/nlapi/orchestra/engine/metadata"
)

// tokenize lower-cases and splits s into alphanumeric tokens, used for both
// the keyword and intent signals.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// keywordScore measures token overlap between the query and the
// endpoint's declared Keywords, normalized by the number of endpoint
// keywords so an endpoint with few, precise keywords isn't penalized
// relative to one with many.
func keywordScore(query string, ep *metadata.Endpoint) float64 {
	if len(ep.Keywords) == 0 {
		return 0
	}
	queryTokens := tokenSet(tokenize(query))
	matched := 0
	for _, kw := range ep.Keywords {
		if _, ok := queryTokens[strings.ToLower(kw)]; ok {
			matched++
			continue
		}
		for qt := range queryTokens {
			if strings.Contains(qt, strings.ToLower(kw)) || strings.Contains(strings.ToLower(kw), qt) {
				matched++
				break
			}
		}
	}
	return math.Min(1, float64(matched)/float64(len(ep.Keywords)))
}

// intentScore measures how well the query matches the endpoint's declared
// IntentPatterns (example phrasings registered alongside the endpoint). A
// pattern that substring-contains the query, or is substring-contained by
// it, scores a full 1.0; otherwise the pattern contributes 0.7 times its
// token overlap ratio with the query, so a partial phrasing match never
// outweighs a direct one.
func intentScore(query string, ep *metadata.Endpoint) float64 {
	if len(ep.IntentPatterns) == 0 {
		return 0
	}
	lowerQuery := strings.ToLower(query)
	queryTokens := tokenSet(tokenize(query))
	best := 0.0
	for _, pattern := range ep.IntentPatterns {
		lowerPattern := strings.ToLower(pattern)
		var score float64
		if strings.Contains(lowerQuery, lowerPattern) || strings.Contains(lowerPattern, lowerQuery) {
			score = 1.0
		} else {
			patternTokens := tokenize(pattern)
			if len(patternTokens) == 0 {
				continue
			}
			matched := 0
			for _, pt := range patternTokens {
				if _, ok := queryTokens[pt]; ok {
					matched++
				}
			}
			score = 0.7 * (float64(matched) / float64(len(patternTokens)))
		}
		if score > best {
			best = score
		}
	}
	return best
}

// semanticScore is the cosine similarity between the query embedding and
// the endpoint's stored embedding, clamped to [0, 1] (cosine similarity
// can go negative for unrelated vectors, but a negative relevance
// contribution isn't meaningful here).
func semanticScore(queryEmbedding, endpointEmbedding []float64) float64 {
	if len(queryEmbedding) == 0 || len(endpointEmbedding) == 0 {
		return 0
	}
	sim := cosineSimilarity(queryEmbedding, endpointEmbedding)
	if sim < 0 {
		return 0
	}
	return sim
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
