// Package resolver implements C4: scoring and selecting the subset of a
// project's registered endpoints relevant to a user's utterance before
// planning, per spec §4.4.
package resolver

import (
	"context"

	"github.com/nlapi/orchestra/engine/metadata"
)

// ScoredEndpoint pairs a candidate endpoint with its resolved intent score
// in [0, 1.1] (property P3; the 0.1 prompt-length bonus lifts the maximum
// above 1).
type ScoredEndpoint struct {
	Endpoint *metadata.Endpoint
	Score    float64
}

// Embedder returns the embedding vector for a piece of text. Implemented
// by *llmgateway.Gateway; kept as a narrow interface here so the resolver
// doesn't depend on the gateway's retry/rate-limit internals.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const (
	weightSemantic = 0.4
	weightKeyword  = 0.3
	weightIntent   = 0.3
	weightLength   = 0.1
	lengthBonusMin = 20

	relevanceThreshold = 0.2
)
