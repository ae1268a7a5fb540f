package planner

import (
	"github.com/nlapi/orchestra/engine/core"
	"github.com/nlapi/orchestra/engine/metadata"
)

// ValidateRequiredParams checks every step against its endpoint's declared
// required parameters, catching a plan that references a real endpoint
// but omits a param the planner should have filled in (spec §4.5 step 5).
// endpoints must be keyed by "METHOD PATH" (metadata.Endpoint.Label()).
func ValidateRequiredParams(plan *Plan, endpoints map[string]*metadata.Endpoint) error {
	for i, step := range plan.Steps {
		ep, ok := endpoints[step.Endpoint]
		if !ok {
			continue
		}
		for _, p := range ep.Parameters {
			if !p.Required {
				continue
			}
			if _, present := step.Params[p.Name]; !present {
				return core.NewError(nil, core.ErrCodePlanMissingParam, "plan step is missing a required parameter",
					map[string]any{"step": i, "param": p.Name, "endpoint": step.Endpoint})
			}
		}
	}
	return nil
}
