// Package formatter implements the external formatter spec §4.9 hands the
// orchestrator's final raw data to: it receives the final raw response
// plus the endpoint label of the last executed step and produces the
// human-facing formattedResponse text and a visualResponse payload.
package formatter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nlapi/orchestra/engine/llmgateway"
	"github.com/nlapi/orchestra/pkg/logger"
)

const systemPrompt = `You summarize the result of a completed API request for an end user.
Respond with one or two plain-language sentences describing what was found
or done. Do not mention JSON, HTTP, status codes, or field names verbatim -
describe the outcome the way a helpful assistant would.`

// ChatGateway is the narrow surface the formatter needs from C3.
type ChatGateway interface {
	Chat(ctx context.Context, req llmgateway.ChatRequest) (*llmgateway.ChatResponse, error)
}

// Formatter turns a pipeline's final raw data into a formattedResponse
// string and a visualResponse value (spec §4.9, §6).
type Formatter struct {
	gateway ChatGateway
}

// New builds a Formatter around gw. gw may be nil, in which case Format
// always falls back to a plain summary.
func New(gw ChatGateway) *Formatter {
	return &Formatter{gateway: gw}
}

// Format produces the formattedResponse and visualResponse for data
// returned by lastEndpoint. Reaching this stage means the pipeline already
// succeeded, so an LLM failure here degrades to a plain-text fallback
// instead of failing the request.
func (f *Formatter) Format(ctx context.Context, data json.RawMessage, lastEndpoint string) (formatted string, visual any, err error) {
	visual = decodeVisual(data)
	if f.gateway == nil || len(data) == 0 {
		return fallbackSummary(lastEndpoint), visual, nil
	}

	resp, err := f.gateway.Chat(ctx, llmgateway.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llmgateway.Message{{Role: llmgateway.RoleUser, Content: buildPrompt(lastEndpoint, data)}},
		Temperature:  0.2,
		MaxTokens:    300,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("response formatter call failed, falling back to a plain summary", "err", err)
		return fallbackSummary(lastEndpoint), visual, nil
	}
	return strings.TrimSpace(resp.Content), visual, nil
}

func decodeVisual(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

func fallbackSummary(lastEndpoint string) string {
	if lastEndpoint == "" {
		return "Request completed."
	}
	return "Request completed via " + lastEndpoint + "."
}

func buildPrompt(lastEndpoint string, data json.RawMessage) string {
	var b strings.Builder
	b.WriteString("The last step called ")
	b.WriteString(lastEndpoint)
	b.WriteString(" and returned:\n")
	b.Write(data)
	return b.String()
}
