package planner

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// stepRefPattern matches "$.steps[<index>].response.<path>" cross-step
// references (spec §6).
var stepRefPattern = regexp.MustCompile(`^\$\.steps\[(\d+)\]\.response(\..+)?$`)

// ParsePlan unmarshals and validates raw JSON into a Plan, enforcing
// property P1 (every step names a known endpoint among candidateLabels)
// and property P2 (no forward references: a step may only reference steps
// strictly before it). An empty "steps" array parses cleanly; it is the
// caller's job to apply the step-6 fallback (spec §4.5) before the plan
// reaches the executor.
func ParsePlan(raw string, candidateLabels map[string]struct{}) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, core.NewError(err, core.ErrCodePlanInvalidJSON, "plan is not valid JSON", map[string]any{"raw": raw})
	}
	if err := structValidator.Struct(&plan); err != nil {
		return nil, core.NewError(err, core.ErrCodePlanInvalidJSON, "plan failed schema validation", nil)
	}
	if err := validateSteps(&plan, candidateLabels); err != nil {
		return nil, err
	}
	return &plan, nil
}

func validateSteps(plan *Plan, candidateLabels map[string]struct{}) error {
	for i, step := range plan.Steps {
		if _, ok := candidateLabels[step.Endpoint]; !ok {
			return core.NewError(nil, core.ErrCodePlanUnknownStep, "step references an endpoint outside the candidate set",
				map[string]any{"step": i, "endpoint": step.Endpoint})
		}
		if err := validateStepRefs(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStepRefs(stepIndex int, step Step) error {
	for paramName, value := range step.Params {
		str, ok := value.(string)
		if !ok {
			continue
		}
		matches := stepRefPattern.FindStringSubmatch(str)
		if matches == nil {
			continue
		}
		refIndex, err := strconv.Atoi(matches[1])
		if err != nil {
			return core.NewError(err, core.ErrCodePlanForwardRef, "malformed step reference", map[string]any{"step": stepIndex, "param": paramName})
		}
		if refIndex >= stepIndex {
			return core.NewError(nil, core.ErrCodePlanForwardRef, "step references a step that has not executed yet",
				map[string]any{"step": stepIndex, "param": paramName, "refIndex": refIndex})
		}
	}
	return nil
}

// IsStepRef reports whether value is a cross-step reference string, and if
// so returns the referenced step index and the JSONPath suffix applied to
// that step's response (possibly empty, meaning the whole response).
func IsStepRef(value any) (index int, path string, ok bool) {
	str, isStr := value.(string)
	if !isStr {
		return 0, "", false
	}
	matches := stepRefPattern.FindStringSubmatch(str)
	if matches == nil {
		return 0, "", false
	}
	idx, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	path = matches[2]
	if len(path) > 0 && path[0] == '.' {
		path = path[1:]
	}
	return idx, path, true
}

// CandidateLabelSet builds the lookup ParsePlan needs from a slice of
// endpoint labels ("METHOD PATH").
func CandidateLabelSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

// ApplyEmptyPlanFallback implements spec §4.5 step 6: when the model
// returns an empty plan, pick the first known endpoint (by label, for a
// deterministic choice) that is a parameterless GET - no path parameters,
// no required parameters at all; failing that, any endpoint with no
// required parameters; failing that, report that no suitable plan exists.
// A non-empty plan is returned unchanged.
func ApplyEmptyPlanFallback(plan *Plan, endpoints map[string]*metadata.Endpoint) (*Plan, error) {
	if len(plan.Steps) > 0 {
		return plan, nil
	}

	labels := make([]string, 0, len(endpoints))
	for label := range endpoints {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var parameterlessGet, anyWithoutRequired *metadata.Endpoint
	for _, label := range labels {
		ep := endpoints[label]
		if hasRequiredParam(ep) {
			continue
		}
		if anyWithoutRequired == nil {
			anyWithoutRequired = ep
		}
		if parameterlessGet == nil && ep.Method == metadata.MethodGet && !strings.Contains(ep.Path, "{") {
			parameterlessGet = ep
		}
	}

	chosen := parameterlessGet
	if chosen == nil {
		chosen = anyWithoutRequired
	}
	if chosen == nil {
		return nil, core.NewError(nil, core.ErrCodeNoSuitablePlan,
			"no suitable plan: the model returned no steps and no endpoint without required parameters is registered", nil)
	}
	return &Plan{Steps: []Step{{Endpoint: chosen.Label(), Params: map[string]any{}}}}, nil
}

func hasRequiredParam(ep *metadata.Endpoint) bool {
	for _, p := range ep.Parameters {
		if p.Required {
			return true
		}
	}
	return false
}
