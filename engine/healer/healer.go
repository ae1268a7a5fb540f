package healer

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/pkg/logger"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ChatGateway is the narrow surface the healer needs from C3.
type ChatGateway interface {
	ChatJSON(ctx context.Context, req llmgateway.ChatRequest) (string, error)
}

// Healer diagnoses a failed step via two independent model roles (C8):
// AnalyzeRetry decides whether the request is worth retrying at all,
// ExtractDeltas separately proposes metadata corrections.
type Healer struct {
	gateway ChatGateway
	repo    Repository
}

// New builds a Healer around gw and repo.
func New(gw ChatGateway, repo Repository) *Healer {
	return &Healer{gateway: gw, repo: repo}
}

// AnalyzeRetry asks the retry analyst whether the request should be
// retried and, if so, how the utterance should be corrected.
func (h *Healer) AnalyzeRetry(ctx context.Context, utterance string, failed executor.StepResult) (*RetryVerdict, error) {
	raw, err := h.gateway.ChatJSON(ctx, llmgateway.ChatRequest{
		SystemPrompt: RetrySystemPrompt(),
		Messages:     []llmgateway.Message{{Role: llmgateway.RoleUser, Content: BuildRetryPrompt(utterance, failed)}},
		Temperature:  0.1,
	})
	if err != nil {
		return nil, err
	}
	var verdict RetryVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidResponse, "retry analyst response is not valid JSON", nil)
	}
	logger.FromContext(ctx).Info("retry analyst verdict", "shouldRetry", verdict.ShouldRetry, "endpoint", failed.Endpoint)
	return &verdict, nil
}

// ExtractDeltas asks the metadata extractor what, if anything, is wrong
// with the failed endpoint's registered metadata.
func (h *Healer) ExtractDeltas(ctx context.Context, failed executor.StepResult, ep *metadata.Endpoint) (*MetadataDeltas, error) {
	raw, err := h.gateway.ChatJSON(ctx, llmgateway.ChatRequest{
		SystemPrompt: ExtractSystemPrompt(),
		Messages:     []llmgateway.Message{{Role: llmgateway.RoleUser, Content: BuildExtractPrompt(failed, ep)}},
		Temperature:  0.1,
	})
	if err != nil {
		return nil, err
	}
	var deltas MetadataDeltas
	if err := json.Unmarshal([]byte(raw), &deltas); err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidResponse, "metadata extractor response is not valid JSON", nil)
	}
	if err := structValidator.Struct(&deltas); err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidResponse, "metadata extractor response failed schema validation", nil)
	}
	return &deltas, nil
}

// Apply applies deltas against projectID's metadata through the healer's
// repository, logging and swallowing any per-delta failure.
func (h *Healer) Apply(ctx context.Context, projectID core.ID, deltas *MetadataDeltas) {
	if h.repo == nil {
		return
	}
	ApplyDeltas(ctx, h.repo, projectID, deltas)
}
