// Package healer implements C8: the two independent model roles consulted
// when a plan step fails. A retry analyst decides whether retrying the
// whole request is worth it and, if so, proposes a corrected utterance
// (spec §4.8, scenarios 4/5). A metadata extractor separately looks at the
// same failure against the endpoint's registered metadata and proposes
// typed corrections - missing parameters, parameter renames, response
// messages worth remembering - which get applied before the retry runs.
package healer

// MissingParameter is a request parameter the target API evidently
// expects that isn't yet registered for the endpoint.
type MissingParameter struct {
	EndpointPath  string `json:"endpointPath" validate:"required"`
	Method        string `json:"method" validate:"required"`
	ParameterName string `json:"parameterName" validate:"required"`
	ParameterType string `json:"parameterType,omitempty"`
	IsRequired    bool   `json:"isRequired"`
	Location      string `json:"location,omitempty"`
}

// ParameterCorrection renames a registered parameter that the model
// believes doesn't match the name the API actually expects.
type ParameterCorrection struct {
	EndpointPath     string `json:"endpointPath" validate:"required"`
	Method           string `json:"method" validate:"required"`
	OldParameterName string `json:"oldParameterName" validate:"required"`
	NewParameterName string `json:"newParameterName" validate:"required"`
}

// ErrorMessageDelta is a human-facing message worth remembering for an
// endpoint/status pair that doesn't yet have one registered.
type ErrorMessageDelta struct {
	EndpointPath string `json:"endpointPath" validate:"required"`
	Method       string `json:"method" validate:"required"`
	StatusCode   int    `json:"statusCode" validate:"required"`
	Message      string `json:"message" validate:"required"`
	Suggestion   string `json:"suggestion,omitempty"`
}

// MetadataDeltas is the metadata extractor's full diagnosis of a failed
// step, applied against C1 before the request retries.
type MetadataDeltas struct {
	MissingParameters    []MissingParameter    `json:"missingParameters,omitempty"`
	ParameterCorrections []ParameterCorrection `json:"parameterCorrections,omitempty"`
	ErrorMessages        []ErrorMessageDelta   `json:"errorMessages,omitempty"`
}

// RetryVerdict is the retry analyst's decision on whether and how to retry
// the whole request. A retry only happens when ShouldRetry is true and
// CorrectedQuery is non-empty (spec §4.8); otherwise the orchestrator
// terminates the request as a failure.
type RetryVerdict struct {
	ShouldRetry    bool   `json:"shouldRetry"`
	CorrectedQuery string `json:"correctedQuery,omitempty"`
	Analysis       string `json:"analysis,omitempty"`
}
