package planner

import (
	"fmt"
	"strings"

	"github.com/nlapi/orchestra/engine/contextcache"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/resolver"
)

const systemPrompt = `You are an API orchestration planner. Given a user request and a set of
available API endpoints, produce a JSON execution plan. Respond with a JSON
object of the form {"steps":[{"endpoint":"GET /pets/{petId}",
"params":{"petId":"123"}}]}.

Rules:
- The "endpoint" value must be exactly one of the endpoints listed below,
  rendered as "METHOD PATH".
- A param value may be a literal, or a reference to an earlier step's
  response using the form "$.steps[<index>].response.<jsonpath>", where
  <index> is strictly less than the current step's position in the plan.
- Order steps so every reference points backward only.
- If none of the endpoints can answer the request, respond with
  {"steps":[]}.
- Respond with JSON only, no prose, no markdown fences.`

// Caps applied while rendering the prompt (spec §4.5 step 3): at most 15
// candidate endpoints, at most 10 field-link hints, and each cached data
// snippet truncated to a fixed length so a single large prior response
// can't dominate the token budget.
const (
	promptCandidateLimit = 15
	promptFieldLinkLimit = 10
	dataSnippetLimit     = 200
)

// BuildPrompt assembles the user-turn prompt for the planning call:
// the utterance, the top candidate endpoints with their parameters, any
// relevant cached context, and field-link hints connecting one endpoint's
// response fields to another's request parameters.
func BuildPrompt(utterance string, candidates []resolver.ScoredEndpoint, cached []contextcache.RankedEntry, links []*metadata.FieldLink) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s\n\n", utterance)

	if len(candidates) > promptCandidateLimit {
		candidates = candidates[:promptCandidateLimit]
	}
	b.WriteString("Available endpoints:\n")
	for _, c := range candidates {
		writeEndpoint(&b, c.Endpoint)
	}

	if len(links) > promptFieldLinkLimit {
		links = links[:promptFieldLinkLimit]
	}
	if len(links) > 0 {
		b.WriteString("\nField links (a prior step's response field can supply a later step's param):\n")
		for _, l := range links {
			writeFieldLink(&b, l)
		}
	}

	if len(cached) > 0 {
		b.WriteString("\nRelevant prior results:\n")
		for _, rc := range cached {
			fmt.Fprintf(&b, "- query=%q endpoint=%s data=%s\n", rc.Entry.Query, rc.Entry.Endpoint, truncateSnippet(string(rc.Entry.Data), dataSnippetLimit))
		}
	}

	return b.String()
}

func truncateSnippet(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

func writeEndpoint(b *strings.Builder, ep *metadata.Endpoint) {
	fmt.Fprintf(b, "- %s: %s\n", ep.Label(), ep.Summary)
	for _, p := range ep.Parameters {
		fmt.Fprintf(b, "    param %s (%s, %s, required=%v): %s\n", p.Name, p.In, p.Type, p.Required, p.Description)
	}
}

func writeFieldLink(b *strings.Builder, l *metadata.FieldLink) {
	if l.FromField == nil || l.ToEndpoint == nil {
		return
	}
	fmt.Fprintf(b, "- %s -> %s param %s (%s)\n", l.FromField.JSONPath, l.ToEndpoint.Label(), l.ToParamName, l.RelationType)
}

// SystemPrompt returns the fixed system prompt used for every planning
// call.
func SystemPrompt() string { return systemPrompt }
