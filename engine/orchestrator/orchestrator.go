package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nlapi/orchestra/engine/contextcache"
	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/executor"
	"github.com/nlapi/orchestra/engine/healer"
	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/engine/planner"
	"github.com/nlapi/orchestra/engine/resolver"
	"github.com/nlapi/orchestra/pkg/logger"
)

// MetadataRepo is the narrow surface the orchestrator needs from C1.
type MetadataRepo interface {
	GetProject(ctx context.Context, id core.ID) (*metadata.Project, error)
	ListEndpoints(ctx context.Context, projectID core.ID, withDetails bool) ([]*metadata.Endpoint, error)
	ListFieldLinks(ctx context.Context, projectID core.ID) ([]*metadata.FieldLink, error)
}

// ContextStore is the narrow surface the orchestrator needs from C2.
type ContextStore interface {
	FindRelevantContext(ctx context.Context, projectID core.ID, query string, userID string) ([]contextcache.RankedEntry, error)
	StoreResult(ctx context.Context, entry contextcache.ResponseEntry) error
	AppendHistory(ctx context.Context, userID string, item contextcache.HistoryItem) error
}

// Recorder receives the orchestrator's operational metrics. Implemented by
// *pkg/metrics.Service; nil-safe so tests can omit it entirely.
type Recorder interface {
	ObserveRequest(stage string)
	ObserveRetry()
	ObserveHeal()
	ObserveStep(method string, status int, seconds float64)
}

// ResponseFormatter is the external formatter spec §4.9 calls once a
// request finishes successfully: it receives the final raw data plus the
// endpoint label of the last executed step and produces the human-facing
// formattedResponse text and a visualResponse payload. Implemented by
// *engine/formatter.Formatter; nil-safe so callers can omit it.
type ResponseFormatter interface {
	Format(ctx context.Context, data json.RawMessage, lastEndpoint string) (formatted string, visual any, err error)
}

// Orchestrator wires C1-C8 into the end-to-end pipeline (C9). Early
// termination (C7) lives inside Executor, which is handed its
// TerminationJudge at construction time; the orchestrator itself only
// drives planning, execution, the heal-and-retry loop, and final
// formatting.
type Orchestrator struct {
	metadataRepo MetadataRepo
	contextStore ContextStore
	embedder     resolver.Embedder
	planner      *planner.Planner
	executor     *executor.Executor
	healer       *healer.Healer
	formatter    ResponseFormatter
	maxRetries   int
	metrics      Recorder
}

// Config bundles the collaborators New needs.
type Config struct {
	MetadataRepo MetadataRepo
	ContextStore ContextStore
	Embedder     resolver.Embedder
	Planner      *planner.Planner
	Executor     *executor.Executor
	Healer       *healer.Healer
	Formatter    ResponseFormatter
	MaxRetries   int
	Metrics      Recorder
}

// New builds an Orchestrator. MaxRetries is clamped to the spec's budget
// of 2 (property P4) regardless of what's passed in.
func New(cfg Config) *Orchestrator {
	maxRetries := cfg.MaxRetries
	if maxRetries > 2 {
		maxRetries = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Orchestrator{
		metadataRepo: cfg.MetadataRepo,
		contextStore: cfg.ContextStore,
		embedder:     cfg.Embedder,
		planner:      cfg.Planner,
		executor:     cfg.Executor,
		healer:       cfg.Healer,
		formatter:    cfg.Formatter,
		maxRetries:   maxRetries,
		metrics:      cfg.Metrics,
	}
}

func (o *Orchestrator) recordStage(stage Stage) {
	if o.metrics != nil {
		o.metrics.ObserveRequest(string(stage))
	}
}

// Process runs the full pipeline and returns only the final outcome,
// discarding intermediate progress events.
func (o *Orchestrator) Process(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	updates := make(chan ChatStreamUpdate, 16)
	done := make(chan struct{})
	var final *ChatResponse
	var finalErr error
	go func() {
		defer close(done)
		for u := range updates {
			if u.Response != nil {
				final = u.Response
			}
			if u.Type == UpdateTypeError && finalErr == nil {
				finalErr = core.NewError(nil, core.ErrCodeLLMGeneration, u.Message, nil)
			}
		}
	}()
	err := o.ProcessStream(ctx, req, updates)
	close(updates)
	<-done
	if err != nil {
		return nil, err
	}
	if finalErr != nil && final == nil {
		return nil, finalErr
	}
	return final, nil
}

// ProcessStream runs the state machine, emitting a ChatStreamUpdate at
// every labeled progress point (spec §4.9: planning@10/20/30/40,
// step_completed@40+40*i/N, formatting@85, completed@100 or error). Every
// failure, including a plan-level one, is both emitted as a terminal error
// update and returned as a non-nil error.
func (o *Orchestrator) ProcessStream(ctx context.Context, req ChatRequest, updates chan<- ChatStreamUpdate) error {
	start := time.Now()
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageInit, Type: UpdateTypePlanning, Progress: progressInit, Message: "starting request",
	})

	project, err := o.metadataRepo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return o.fail(updates, start, err)
	}

	cached, candidates, links, endpointsByLabel, err := o.gatherContext(ctx, req)
	if err != nil {
		return o.fail(updates, start, err)
	}
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageContext, Type: UpdateTypePlanning, Progress: progressContextFound, Message: "context found",
	})

	response, err := o.runWithRetries(ctx, req, project, updates, start, cached, candidates, links, endpointsByLabel)
	if err != nil {
		return o.fail(updates, start, err)
	}

	o.recordOutcome(ctx, req, response)
	o.recordStage(StageDone)
	response.ExecutionDetails.ExecutionTimeMs = time.Since(start).Milliseconds()
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageDone, Type: UpdateTypeCompleted, Progress: progressCompleted,
		Message: response.Message, Data: response.Data, Response: response,
	})
	return nil
}

func (o *Orchestrator) gatherContext(ctx context.Context, req ChatRequest) (
	[]contextcache.RankedEntry, []resolver.ScoredEndpoint, []*metadata.FieldLink, map[string]*metadata.Endpoint, error,
) {
	var cached []contextcache.RankedEntry
	if o.contextStore != nil {
		c, err := o.contextStore.FindRelevantContext(ctx, req.ProjectID, req.Utterance, req.UserID)
		if err != nil {
			logger.FromContext(ctx).Warn("context cache lookup failed, continuing without cached context", "err", err)
		} else {
			cached = c
		}
	}

	allEndpoints, err := o.metadataRepo.ListEndpoints(ctx, req.ProjectID, true)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	endpointsByLabel := make(map[string]*metadata.Endpoint, len(allEndpoints))
	for _, ep := range allEndpoints {
		endpointsByLabel[ep.Label()] = ep
	}

	candidates, err := resolver.Resolve(ctx, o.embedder, req.Utterance, allEndpoints)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	links, err := o.metadataRepo.ListFieldLinks(ctx, req.ProjectID)
	if err != nil {
		logger.FromContext(ctx).Warn("loading field links failed, continuing without hints", "err", err)
	}

	return cached, candidates, links, endpointsByLabel, nil
}

// runWithRetries drives the planning-then-execution loop up to
// 1+maxRetries full passes (property P4), invoking the healer between
// passes on failure and restarting from a fresh plan with any corrected
// utterance it returns. On success it also runs the external formatter
// (spec §4.9) before returning the final response.
func (o *Orchestrator) runWithRetries(
	ctx context.Context,
	req ChatRequest,
	project *metadata.Project,
	updates chan<- ChatStreamUpdate,
	start time.Time,
	cached []contextcache.RankedEntry,
	candidates []resolver.ScoredEndpoint,
	links []*metadata.FieldLink,
	endpointsByLabel map[string]*metadata.Endpoint,
) (*ChatResponse, error) {
	utterance := req.Utterance
	retriesUsed := 0

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		o.emitElapsed(updates, start, ChatStreamUpdate{
			Stage: StagePlanning, Type: UpdateTypePlanning, Progress: progressPlanningStart, Message: "synthesizing plan",
		})
		plan, err := o.planner.Plan(ctx, utterance, candidates, endpointsByLabel, cached, links)
		if err != nil {
			retry, corrected := o.shouldHealAndRetry(ctx, req.ProjectID, attempt, utterance, executor.StepResult{}, nil, updates, start)
			if retry {
				retriesUsed++
				utterance = corrected
				continue
			}
			return nil, err
		}
		o.emitElapsed(updates, start, ChatStreamUpdate{
			Stage: StagePlanning, Type: UpdateTypePlanning, Progress: progressPlanReady, Message: "plan ready", TotalSteps: len(plan.Steps),
		})

		o.emitElapsed(updates, start, ChatStreamUpdate{
			Stage: StageExecuting, Type: UpdateTypeExecuting, Progress: progressExecutingBase, Message: "executing plan", TotalSteps: len(plan.Steps),
		})
		run, runErr := o.executor.Run(ctx, plan, project.BaseURL, req.ProjectID, endpointsByLabel, req.Auth, utterance, nil)
		for i := range run.Steps {
			r := run.Steps[i]
			if o.metrics != nil {
				o.metrics.ObserveStep(r.Method, r.StatusCode, r.Duration.Seconds())
			}
			o.emitElapsed(updates, start, ChatStreamUpdate{
				Stage: StageExecuting, Type: UpdateTypeStepCompleted, Progress: stepProgress(i+1, len(plan.Steps)),
				Step: i, TotalSteps: len(plan.Steps), Message: "step completed", Data: r.Response, StepResult: &r,
			})
		}

		if runErr == nil {
			return o.buildSuccessResponse(ctx, updates, start, plan, run, retriesUsed), nil
		}

		failed := run.Steps[len(run.Steps)-1]
		ep := endpointsByLabel[failed.Endpoint]
		retry, corrected := o.shouldHealAndRetry(ctx, req.ProjectID, attempt, utterance, failed, ep, updates, start)
		if retry {
			retriesUsed++
			utterance = corrected
			continue
		}
		return nil, runErr
	}

	return nil, core.NewError(nil, core.ErrCodeBudgetExhausted, "retry budget exhausted", nil)
}

// buildSuccessResponse runs the external formatter over the last step's
// raw data (spec §4.9's formatting@85 checkpoint) and assembles the final
// §6 ChatResponse.
func (o *Orchestrator) buildSuccessResponse(
	ctx context.Context,
	updates chan<- ChatStreamUpdate,
	start time.Time,
	plan *planner.Plan,
	run executor.RunResult,
	retriesUsed int,
) *ChatResponse {
	last := run.Steps[len(run.Steps)-1]
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageDone, Type: UpdateTypeFormatting, Progress: progressFormatting, Message: "formatting response",
	})

	var formatted string
	var visual any
	if o.formatter != nil {
		f, v, err := o.formatter.Format(ctx, last.Response, last.Endpoint)
		if err != nil {
			logger.FromContext(ctx).Warn("response formatting failed, continuing without a formatted response", "err", err)
		} else {
			formatted, visual = f, v
		}
	}

	return &ChatResponse{
		Success:           true,
		Message:           "request completed successfully",
		Data:              last.Response,
		FormattedResponse: formatted,
		VisualResponse:    visual,
		ExecutionDetails: ExecutionDetails{
			PlanSteps:         len(plan.Steps),
			StepsExecuted:     len(run.Steps),
			RetryCount:        retriesUsed,
			EarlyTermination:  run.EarlyTerminated,
			TerminationReason: run.TerminationReason,
		},
		Results: run.Steps,
	}
}

// shouldHealAndRetry consults the healer after a planning or execution
// failure. It applies any metadata deltas immediately (idempotent, C1
// cache invalidated by the repository itself) and reports whether the
// pipeline should restart, along with the corrected utterance to restart
// with. failed's zero value is used for a planning-stage failure, where
// there is no step result yet. Holds no state on the Orchestrator itself,
// so concurrent requests never share mutable retry state (spec §5).
func (o *Orchestrator) shouldHealAndRetry(
	ctx context.Context,
	projectID core.ID,
	attempt int,
	utterance string,
	failed executor.StepResult,
	ep *metadata.Endpoint,
	updates chan<- ChatStreamUpdate,
	start time.Time,
) (retry bool, correctedQuery string) {
	if attempt >= o.maxRetries || o.healer == nil {
		return false, ""
	}
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageHealing, Type: UpdateTypeExecuting, Progress: progressExecutingBase, Message: "analyzing failure and healing metadata",
	})

	if ep != nil {
		if deltas, err := o.healer.ExtractDeltas(ctx, failed, ep); err != nil {
			logger.FromContext(ctx).Warn("metadata extractor call failed, retrying with existing metadata", "err", err)
		} else {
			o.healer.Apply(ctx, projectID, deltas)
			if o.metrics != nil {
				o.metrics.ObserveHeal()
			}
		}
	}

	verdict, err := o.healer.AnalyzeRetry(ctx, utterance, failed)
	if err != nil {
		logger.FromContext(ctx).Warn("retry analyst call failed, ending request as a failure", "err", err)
		return false, ""
	}
	if !verdict.ShouldRetry || verdict.CorrectedQuery == "" {
		return false, ""
	}

	if o.metrics != nil {
		o.metrics.ObserveRetry()
	}
	o.emitElapsed(updates, start, ChatStreamUpdate{
		Stage: StageRetrying, Type: UpdateTypeExecuting, Progress: progressExecutingBase, Message: "retrying with corrected request",
	})
	return true, verdict.CorrectedQuery
}

func (o *Orchestrator) recordOutcome(ctx context.Context, req ChatRequest, response *ChatResponse) {
	if o.contextStore == nil || len(response.Results) == 0 {
		return
	}
	last := response.Results[len(response.Results)-1]
	if !last.Succeeded() {
		_ = o.contextStore.AppendHistory(ctx, req.UserID, contextcache.HistoryItem{Query: req.Utterance, Success: false})
		return
	}
	_ = o.contextStore.AppendHistory(ctx, req.UserID, contextcache.HistoryItem{Query: req.Utterance, Success: true})
	data, _ := json.Marshal(response.Results)
	if err := o.contextStore.StoreResult(ctx, contextcache.ResponseEntry{
		ProjectID: req.ProjectID,
		Query:     req.Utterance,
		UserID:    req.UserID,
		Endpoint:  last.Method + " " + last.URL,
		Data:      json.RawMessage(data),
	}); err != nil {
		logger.FromContext(ctx).Warn("failed to store successful result in context cache", "err", err)
	}
}

func (o *Orchestrator) fail(updates chan<- ChatStreamUpdate, start time.Time, err error) error {
	o.recordStage(StageFailed)
	o.emitElapsed(updates, start, ChatStreamUpdate{Stage: StageFailed, Type: UpdateTypeError, Message: err.Error()})
	return err
}

// emitElapsed stamps u with the current time and the elapsed duration
// since start before sending it (spec §6's `timestamp` and
// `executionTimeMs` fields).
func (o *Orchestrator) emitElapsed(updates chan<- ChatStreamUpdate, start time.Time, u ChatStreamUpdate) {
	u.ExecutionTimeMs = time.Since(start).Milliseconds()
	emit(updates, u)
}

func emit(updates chan<- ChatStreamUpdate, u ChatStreamUpdate) {
	if updates == nil {
		return
	}
	u.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	updates <- u
}
