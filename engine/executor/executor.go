package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/planner"
	"github.com/nlapi/orchestra/pkg/logger"
)

// MessageLookup resolves a human-facing message/suggestion for a
// non-2xx status, implemented by *metadata.Repository.
type MessageLookup interface {
	FindResponseMessage(ctx context.Context, projectID, endpointID core.ID, status int) (*metadata.ResponseMessage, bool)
}

// TerminationJudge asks whether the request has already been satisfied by
// the results executed so far (C7, spec §4.7). Implemented by
// *judge.Judge; nil disables early termination entirely.
type TerminationJudge interface {
	IsSatisfied(ctx context.Context, utterance string, results []StepResult) bool
}

// Executor runs a plan's steps in order against a single target service,
// grounded on the teacher's cli/api_client.go resty configuration (fixed
// timeout, bounded retry on transient failures).
type Executor struct {
	client   *resty.Client
	messages MessageLookup
	judge    TerminationJudge
}

// New builds an Executor. httpTimeout bounds every single request;
// retryBackoff is the wait before the one allowed retry on a transient
// failure. judge may be nil, in which case every plan step always runs.
func New(httpTimeout, retryBackoff time.Duration, messages MessageLookup, judge TerminationJudge) *Executor {
	client := resty.New().
		SetTimeout(httpTimeout).
		SetRetryCount(1).
		SetRetryWaitTime(retryBackoff).
		SetRetryMaxWaitTime(retryBackoff * 2)
	client.AddRetryCondition(isRetryableResponse)
	return &Executor{client: client, messages: messages, judge: judge}
}

// Run executes plan's steps in order, stopping at the first failure (the
// orchestrator decides whether to heal-and-retry or terminate) and, after
// every step but the last, asking the termination judge whether the
// request is already satisfied - a YES short-circuits the remaining steps
// (spec §4.6 step 7, §4.7, property P7). priorResults should carry any
// successfully executed steps from an earlier pass, so a retried plan
// doesn't re-run steps that already succeeded.
func (e *Executor) Run(
	ctx context.Context,
	plan *planner.Plan,
	baseURL string,
	projectID core.ID,
	endpoints map[string]*metadata.Endpoint,
	auth *core.AuthBlob,
	utterance string,
	priorResults []StepResult,
) (RunResult, error) {
	results := append([]StepResult{}, priorResults...)
	for i, step := range plan.Steps {
		if i < len(priorResults) {
			continue
		}
		result, err := e.runStep(ctx, step, baseURL, projectID, endpoints, auth, results)
		results = append(results, result)
		if err != nil {
			return RunResult{Steps: results}, err
		}
		if !result.Succeeded() {
			return RunResult{Steps: results}, core.NewError(nil, core.ErrCodeStepHTTP, "step returned a non-success status",
				map[string]any{"step": i, "status": result.StatusCode})
		}

		isLast := i == len(plan.Steps)-1
		if !isLast && e.judge != nil && e.judge.IsSatisfied(ctx, utterance, results) {
			logger.FromContext(ctx).Info("termination judge reports the request is satisfied, skipping remaining steps",
				"stepsExecuted", len(results), "planSteps", len(plan.Steps))
			return RunResult{
				Steps:             results,
				EarlyTerminated:   true,
				TerminationReason: fmt.Sprintf("request satisfied after step %d of %d", len(results), len(plan.Steps)),
			}, nil
		}
	}
	return RunResult{Steps: results}, nil
}

func (e *Executor) runStep(
	ctx context.Context,
	step planner.Step,
	baseURL string,
	projectID core.ID,
	endpoints map[string]*metadata.Endpoint,
	auth *core.AuthBlob,
	priorResults []StepResult,
) (StepResult, error) {
	result := StepResult{Endpoint: step.Endpoint}

	ep, ok := endpoints[step.Endpoint]
	if !ok {
		return result, core.NewError(nil, core.ErrCodePlanUnknownStep, "no endpoint metadata for step", map[string]any{"endpoint": step.Endpoint})
	}
	result.Method = string(ep.Method)

	resolved, err := resolveParams(step.Params, priorResults)
	if err != nil {
		return result, core.NewError(err, core.ErrCodeStepInterpolation, "failed to interpolate step params", map[string]any{"endpoint": step.Endpoint})
	}

	fullURL, headers, body, err := buildRequest(ctx, baseURL, ep, resolved)
	if err != nil {
		return result, core.NewError(err, core.ErrCodeStepInterpolation, "failed to build step request", map[string]any{"endpoint": step.Endpoint})
	}
	result.URL = fullURL

	req := e.client.R().SetContext(ctx).SetHeaders(headers)
	for k, v := range auth.Headers() {
		req.SetHeader(k, v)
	}
	if len(body) > 0 && supportsBody(ep.Method) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(string(ep.Method), fullURL)
	result.Duration = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return result, core.NewError(err, core.ErrCodeStepCanceled, "step canceled", map[string]any{"endpoint": step.Endpoint})
		}
		result.ErrMessage = err.Error()
		return result, core.NewError(err, core.ErrCodeStepHTTP, "step request failed", map[string]any{"endpoint": step.Endpoint})
	}

	result.StatusCode = resp.StatusCode()
	result.Response = json.RawMessage(resp.Body())
	if result.StatusCode >= 400 {
		e.attachErrorMessage(ctx, projectID, ep.ID, &result)
	}
	logger.FromContext(ctx).Debug("step executed", "endpoint", step.Endpoint, "status", result.StatusCode, "duration", result.Duration)
	return result, nil
}

func (e *Executor) attachErrorMessage(ctx context.Context, projectID, endpointID core.ID, result *StepResult) {
	if e.messages == nil {
		return
	}
	msg, ok := e.messages.FindResponseMessage(ctx, projectID, endpointID, result.StatusCode)
	if !ok {
		return
	}
	result.ErrMessage = msg.Message
	result.Suggestion = msg.Suggestion
}

// supportsBody reports whether method is one of the methods spec §4.6
// step 2 allows a JSON body on. A param whose location is body (or any
// location other than path, query or header) on a GET/DELETE/HEAD endpoint
// is left out of the request rather than shipped as a body.
func supportsBody(method metadata.HTTPMethod) bool {
	switch method {
	case metadata.MethodPost, metadata.MethodPut, metadata.MethodPatch:
		return true
	default:
		return false
	}
}

func isRetryableResponse(r *resty.Response, err error) bool {
	if err != nil {
		var netErr net.Error
		if asNetError(err, &netErr) {
			return true
		}
		msg := strings.ToLower(err.Error())
		return strings.Contains(msg, "connection reset") || strings.Contains(msg, "timeout")
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == 429 || (code >= 500 && code < 600)
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
