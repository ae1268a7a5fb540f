// Package executor implements C6: running a validated plan's steps one at
// a time against the target HTTP service, forwarding credentials,
// interpolating cross-step references, judging after each non-final step
// whether the request is already satisfied, and recording each step's
// outcome.
package executor

import (
	"encoding/json"
	"time"
)

// StepResult captures the outcome of executing a single plan step.
type StepResult struct {
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	StatusCode int             `json:"statusCode"`
	Response   json.RawMessage `json:"response,omitempty"`
	ErrMessage string          `json:"error,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
	Duration   time.Duration   `json:"durationMs"`
}

// Succeeded reports whether the step's HTTP status indicates success
// (2xx) and no transport-level error occurred.
func (r StepResult) Succeeded() bool {
	return r.ErrMessage == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// RunResult is the outcome of running a plan: the steps actually executed,
// and whether the termination judge cut the plan short (spec §4.7, P7).
type RunResult struct {
	Steps             []StepResult
	EarlyTerminated   bool
	TerminationReason string
}
