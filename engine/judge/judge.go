// Package judge implements C7: after each executed step, asking the model
// a single yes/no question — has the user's request now been satisfied —
// so the orchestrator can stop early instead of running every planned
// step regardless of need (spec §4.6).
package judge

import (
	"context"
	"strconv"
	"strings"

	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/pkg/logger"
)

const systemPrompt = `You judge whether a user's request has been fully satisfied by the API
calls made so far. Respond with exactly one word: YES or NO. Say YES only
if the most recent successful response already contains everything the
user asked for and no further step is needed.`

// ChatGateway is the narrow surface the judge needs from C3.
type ChatGateway interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (*llmgateway.ChatResponse, error)
}

// Judge asks whether the plan can stop early.
type Judge struct {
	gateway ChatGateway
}

// New builds a Judge around gw.
func New(gw ChatGateway) *Judge {
	return &Judge{gateway: gw}
}

// IsSatisfied returns true when the model says the utterance has been
// fully answered by the results so far. Any LLM failure is treated as
// "not satisfied" (non-fatal, per spec §4.6: a judge failure never aborts
// the plan, it just forces continued execution) and logged.
func (j *Judge) IsSatisfied(ctx context.Context, utterance string, results []executor.StepResult) bool {
	prompt := buildPrompt(utterance, results)
	resp, err := j.gateway.Chat(ctx, llmgateway.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llmgateway.Message{{Role: llmgateway.RoleUser, Content: prompt}},
		Temperature:  0,
		MaxTokens:    5,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("termination judge call failed, continuing execution", "err", err)
		return false
	}
	answer := strings.ToUpper(strings.TrimSpace(resp.Content))
	return strings.HasPrefix(answer, "YES")
}

func buildPrompt(utterance string, results []executor.StepResult) string {
	var b strings.Builder
	b.WriteString("User request: ")
	b.WriteString(utterance)
	b.WriteString("\n\nResults so far:\n")
	for _, r := range results {
		b.WriteString("- ")
		b.WriteString(r.Endpoint)
		b.WriteString(" status=")
		b.WriteString(strconv.Itoa(r.StatusCode))
		b.WriteString(" body=")
		b.Write(r.Response)
		b.WriteString("\n")
	}
	b.WriteString("\nHas the request been fully satisfied? Answer YES or NO.")
	return b.String()
}
