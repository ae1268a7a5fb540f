package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nlapi/orchestra/engine/planner"
)

// bracketIndex matches a JSONPath "[i]" array index.
var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// resolveValue resolves a single param value: a literal passes through
// unchanged, a "$.steps[i].response.<path>" reference is looked up in
// priorResults via gjson against that step's recorded response body
// (spec §6, property P9). JSONPath "[i]" indices and "[*]" wildcards in
// <path> are rewritten to gjson's ".i" and ".#" forms first, so
// "items[0].id" and "items.0.id" resolve to the same value.
func resolveValue(value any, priorResults []StepResult) (any, error) {
	idx, path, ok := planner.IsStepRef(value)
	if !ok {
		return value, nil
	}
	if idx < 0 || idx >= len(priorResults) {
		return nil, fmt.Errorf("step reference index %d out of range (have %d prior results)", idx, len(priorResults))
	}
	result := priorResults[idx]
	if path == "" {
		return string(result.Response), nil
	}
	gpath := strings.ReplaceAll(path, "[*]", ".#")
	gpath = strings.TrimPrefix(bracketIndex.ReplaceAllString(gpath, ".${1}"), ".")
	found := gjson.GetBytes(result.Response, gpath)
	if !found.Exists() {
		return nil, fmt.Errorf("step %d response has no field at path %q", idx, path)
	}
	return found.Value(), nil
}

// resolveParams resolves every value in params, returning a new map; a
// resolution failure for any one param fails the whole step (the executor
// surfaces it as core.ErrCodeStepInterpolation).
func resolveParams(params map[string]any, priorResults []StepResult) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		rv, err := resolveValue(v, priorResults)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		resolved[k] = rv
	}
	return resolved, nil
}
