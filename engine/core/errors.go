package core

import "fmt"

// Error codes used across the orchestration pipeline. Components attach one
// of these to every core.Error they raise so the orchestrator and transport
// layer can classify failures without string matching on messages.
const (
	ErrCodeProjectNotFound   = "PROJECT_NOT_FOUND"
	ErrCodeEndpointNotFound  = "ENDPOINT_NOT_FOUND"
	ErrCodeDuplicateEndpoint = "DUPLICATE_ENDPOINT"

	ErrCodeLLMGeneration   = "LLM_GENERATION_ERROR"
	ErrCodeInvalidResponse = "INVALID_LLM_RESPONSE"

	ErrCodePlanInvalidJSON  = "PLAN_INVALID_JSON"
	ErrCodeNoSuitablePlan   = "NO_SUITABLE_PLAN"
	ErrCodePlanUnknownStep  = "PLAN_UNKNOWN_ENDPOINT"
	ErrCodePlanMissingParam = "PLAN_MISSING_REQUIRED_PARAM"
	ErrCodePlanForwardRef   = "PLAN_FORWARD_REFERENCE"

	ErrCodeStepInterpolation = "STEP_INTERPOLATION_ERROR"
	ErrCodeStepHTTP          = "STEP_HTTP_ERROR"
	ErrCodeStepCanceled      = "STEP_CANCELED"

	ErrCodeBudgetExhausted = "RETRY_BUDGET_EXHAUSTED"

	ErrCodeBadRequest = "BAD_REQUEST"
)

// Error is the taxonomy-carrying error type used across the engine. It wraps
// an underlying cause with a stable Code and free-form Details for logging
// and for the HTTP Problem representation.
type Error struct {
	Code    string
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs a tagged Error. msg is a short human summary; details
// carries structured context (endpoint, step index, status code, ...).
func NewError(cause error, code string, msg string, details map[string]any) *Error {
	return &Error{Code: code, Message: msg, Cause: cause, Details: details}
}

// CodeOf extracts the Code of err if it (or something it wraps) is an *Error.
func CodeOf(err error) string {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Code
}
