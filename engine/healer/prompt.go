package healer

import (
	"fmt"
	"strings"

	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/metadata"
)

const retrySystemPrompt = `A step in an API orchestration plan failed. Decide whether retrying the
user's original request is worth it at all, and if so, how the request
should be rephrased to avoid the same failure. Respond with a single JSON
object: {"shouldRetry":true,"correctedQuery":"...","analysis":"..."}.

Set shouldRetry to false for failures retrying can't fix (bad input the
user must correct themselves, a resource that genuinely doesn't exist, a
permission problem). Only set it to true together with a non-empty
correctedQuery - a retry with no corrected query never happens. Respond
with JSON only.`

const extractSystemPrompt = `A step in an API orchestration plan failed. Compare the failure against
the endpoint's currently registered parameter metadata and decide what, if
anything, is wrong with that metadata. Respond with a single JSON object:
{"missingParameters":[{"endpointPath":"/pets/{id}","method":"GET",
"parameterName":"...","parameterType":"string","isRequired":true,
"location":"query"}],"parameterCorrections":[{"endpointPath":"...",
"method":"GET","oldParameterName":"...","newParameterName":"..."}],
"errorMessages":[{"endpointPath":"...","method":"GET","statusCode":404,
"message":"...","suggestion":"..."}]}.

Omit any array that doesn't apply; all three may be empty. Respond with
JSON only.`

// BuildRetryPrompt describes the failed step so the retry analyst can
// judge whether the whole request is worth retrying.
func BuildRetryPrompt(utterance string, result executor.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %s\n", utterance)
	fmt.Fprintf(&b, "Failed endpoint: %s\n", result.Endpoint)
	fmt.Fprintf(&b, "Status: %d\n", result.StatusCode)
	if result.ErrMessage != "" {
		fmt.Fprintf(&b, "Error message: %s\n", result.ErrMessage)
	}
	fmt.Fprintf(&b, "Response body: %s\n", string(result.Response))
	return b.String()
}

// BuildExtractPrompt describes the failed step and the endpoint's current
// parameter metadata so the metadata extractor can decide what, if
// anything, to correct.
func BuildExtractPrompt(result executor.StepResult, ep *metadata.Endpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Endpoint: %s\n", ep.Label())
	fmt.Fprintf(&b, "Failed step status: %d\n", result.StatusCode)
	if result.ErrMessage != "" {
		fmt.Fprintf(&b, "Error message: %s\n", result.ErrMessage)
	}
	fmt.Fprintf(&b, "Response body: %s\n\n", string(result.Response))

	b.WriteString("Current registered parameters:\n")
	for _, p := range ep.Parameters {
		fmt.Fprintf(&b, "- %s (in=%s, type=%s, required=%v): %s\n", p.Name, p.In, p.Type, p.Required, p.Description)
	}
	return b.String()
}

// RetrySystemPrompt returns the fixed system prompt for the retry analyst.
func RetrySystemPrompt() string { return retrySystemPrompt }

// ExtractSystemPrompt returns the fixed system prompt for the metadata
// extractor.
func ExtractSystemPrompt() string { return extractSystemPrompt }
