// Package orchestrator implements C9: the top-level state machine that
// turns one user utterance into a resolved, planned, executed, and
// judged sequence of API calls, healing and retrying metadata on
// failure, and streaming progress throughout (spec §4, §5, §6).
package orchestrator

import (
	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/executor"
)

// Stage names the orchestrator's internal state-machine states (spec §5).
// It is not part of the wire contract - UpdateType is what a streaming
// client actually sees in a ChatStreamUpdate's `type` field.
type Stage string

const (
	StageInit      Stage = "INIT"
	StageContext   Stage = "CONTEXT"
	StagePlanning  Stage = "PLANNING"
	StageExecuting Stage = "EXECUTING"
	StageJudging   Stage = "JUDGING"
	StageHealing   Stage = "HEALING"
	StageRetrying  Stage = "RETRYING"
	StageDone      Stage = "DONE"
	StageFailed    Stage = "FAILED"
)

// UpdateType is the wire-level `type` enum a ChatStreamUpdate carries
// (spec §6).
type UpdateType string

const (
	UpdateTypePlanning      UpdateType = "planning"
	UpdateTypeExecuting     UpdateType = "executing"
	UpdateTypeStepCompleted UpdateType = "step_completed"
	UpdateTypeFormatting    UpdateType = "formatting"
	UpdateTypeCompleted     UpdateType = "completed"
	UpdateTypeError         UpdateType = "error"
)

// Progress checkpoints processStream reports along the pipeline (spec
// §4.9): planning@10/20/30/40, step_completed@40+40*i/N,
// formatting@85, completed@100.
const (
	progressInit          = 10
	progressContextFound  = 20
	progressPlanningStart = 30
	progressPlanReady     = 40
	progressExecutingBase = 40
	progressExecutingSpan = 40
	progressFormatting    = 85
	progressCompleted     = 100
)

// stepProgress computes the step_completed progress for the i-th
// completed step (1-indexed) out of n total steps.
func stepProgress(i, n int) int {
	if n <= 0 {
		return progressExecutingBase
	}
	return progressExecutingBase + progressExecutingSpan*i/n
}

// ChatRequest is the transport-agnostic input to Process/ProcessStream
// (spec §6).
type ChatRequest struct {
	ProjectID core.ID
	UserID    string
	Utterance string
	Auth      *core.AuthBlob
}

// ExecutionDetails reports pipeline-level bookkeeping about how a request
// was fulfilled (spec §6).
type ExecutionDetails struct {
	PlanSteps         int    `json:"planSteps"`
	StepsExecuted     int    `json:"stepsExecuted"`
	ExecutionTimeMs   int64  `json:"executionTimeMs"`
	RetryCount        int    `json:"retryCount"`
	EarlyTermination  bool   `json:"earlyTermination"`
	TerminationReason string `json:"terminationReason,omitempty"`
}

// ChatResponse is the final outcome of a fully processed request (spec
// §6).
type ChatResponse struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	Data              any              `json:"data,omitempty"`
	FormattedResponse string           `json:"formattedResponse,omitempty"`
	VisualResponse    any              `json:"visualResponse,omitempty"`
	ExecutionDetails  ExecutionDetails `json:"executionDetails"`
	Error             string           `json:"error,omitempty"`

	// Results carries the raw per-step outcomes. It isn't part of §6's
	// wire contract, but callers (this transport, tests, the context
	// cache write-back) need more than the summarized executionDetails.
	Results []executor.StepResult `json:"results,omitempty"`
}

// ChatStreamUpdate is one progress event emitted while processing a
// request (spec §6's ChatStreamUpdate contract).
type ChatStreamUpdate struct {
	Type            UpdateType `json:"type"`
	Step            int        `json:"step,omitempty"`
	TotalSteps      int        `json:"totalSteps,omitempty"`
	Message         string     `json:"message"`
	Progress        int        `json:"progress"`
	Data            any        `json:"data,omitempty"`
	ExecutionTimeMs int64      `json:"executionTimeMs,omitempty"`
	Timestamp       string     `json:"timestamp"`

	// Stage, StepResult and Response are internal bookkeeping consumed by
	// Process (to reassemble the final response) and by tests; they are
	// not part of the wire contract.
	Stage      Stage                `json:"-"`
	StepResult *executor.StepResult `json:"-"`
	Response   *ChatResponse        `json:"-"`
}
