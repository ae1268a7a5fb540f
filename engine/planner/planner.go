package planner

import (
	"context"

	"github.com/nlapi/orchestra/engine/contextcache"
	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/resolver"
	"github.com/nlapi/orchestra/pkg/logger"
)

// ChatGateway is the narrow surface the planner needs from C3.
type ChatGateway interface {
	ChatJSON(ctx context.Context, req llmgateway.ChatRequest) (string, error)
}

// candidateLimit is the top-N cap C5 applies to C4's ranked output before
// planning (spec §4.5 step 2).
const candidateLimit = 10

// Planner builds and validates execution plans from a resolved candidate
// set (C5).
type Planner struct {
	gateway ChatGateway
}

// New builds a Planner around gw.
func New(gw ChatGateway) *Planner {
	return &Planner{gateway: gw}
}

// Plan synthesizes a plan for utterance against candidates, grounding the
// prompt in cached context and field-link hints, then validates the
// result (P1, P2), applies the step-6 empty-plan fallback against the full
// registered endpoint set (I5), and validates the endpoint-declared
// required parameters.
func (p *Planner) Plan(
	ctx context.Context,
	utterance string,
	candidates []resolver.ScoredEndpoint,
	endpointsByLabel map[string]*metadata.Endpoint,
	cached []contextcache.RankedEntry,
	links []*metadata.FieldLink,
) (*Plan, error) {
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	candidateLabels := make([]string, 0, len(candidates))
	for _, c := range candidates {
		candidateLabels = append(candidateLabels, c.Endpoint.Label())
	}
	if len(candidateLabels) == 0 {
		return nil, core.NewError(nil, core.ErrCodeNoSuitablePlan, "no candidate endpoints available for planning", nil)
	}

	prompt := BuildPrompt(utterance, candidates, cached, links)
	raw, err := p.gateway.ChatJSON(ctx, llmgateway.ChatRequest{
		SystemPrompt: SystemPrompt(),
		Messages:     []llmgateway.Message{{Role: llmgateway.RoleUser, Content: prompt}},
		Temperature:  0.1,
	})
	if err != nil {
		return nil, err
	}

	plan, err := ParsePlan(raw, CandidateLabelSet(candidateLabels))
	if err != nil {
		return nil, err
	}
	plan, err = ApplyEmptyPlanFallback(plan, endpointsByLabel)
	if err != nil {
		return nil, err
	}
	if err := ValidateRequiredParams(plan, endpointsByLabel); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("plan synthesized", "steps", len(plan.Steps))
	return plan, nil
}
