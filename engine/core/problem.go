package core

import "net/http"

// ProblemDocument models the canonical error envelope returned at the HTTP
// transport boundary (RFC 7807-flavored, grounded on the teacher's
// engine/core/problem.go).
type ProblemDocument struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
}

// ProblemFromError maps an engine error into a ProblemDocument, preferring
// the tagged Code/Message on *Error and falling back to a generic 500.
func ProblemFromError(err error) *ProblemDocument {
	if err == nil {
		return &ProblemDocument{Status: http.StatusOK}
	}
	status := http.StatusInternalServerError
	code := ""
	if ae, ok := asError(err); ok {
		code = ae.Code
		status = statusForCode(ae.Code)
	}
	return &ProblemDocument{
		Status:  status,
		Error:   http.StatusText(status),
		Details: err.Error(),
		Code:    code,
		Type:    "about:blank",
	}
}

func asError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func statusForCode(code string) int {
	switch code {
	case ErrCodeProjectNotFound, ErrCodeEndpointNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateEndpoint:
		return http.StatusConflict
	case ErrCodePlanInvalidJSON, ErrCodeNoSuitablePlan, ErrCodePlanUnknownStep,
		ErrCodePlanMissingParam, ErrCodePlanForwardRef, ErrCodeStepInterpolation:
		return http.StatusUnprocessableEntity
	case ErrCodeStepCanceled:
		return http.StatusRequestTimeout
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeBudgetExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
