// Package decomposer implements the Goal Decomposer (§4.7): turns one goal
// into 1-5 sub-goal specs via a single LLM call, sanitizing the dependency
// indices the model hands back. Grounded on the teacher's planner.go
// (structured LLM-driven planning output) and sanitize.go (index/self-
// reference cleanup before the result reaches anything that trusts it).
package decomposer

import (
	"context"

	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/runctx"
)

var decompositionSchema = llmclient.GenerateSchema[decompositionResponse]()

type decompositionResponse struct {
	SubGoals []model.SubGoalSpec `json:"sub_goals"`
}

type Decomposer struct {
	invoker *prompt.Invoker
}

func New(invoker *prompt.Invoker) *Decomposer {
	return &Decomposer{invoker: invoker}
}

// Decompose is the public contract: decompose(goal, context, siblings_done)
// -> list[SubGoalSpec]. Returns an empty list (not an error) when the goal
// is already at max depth, forcing the Action Selector toward a non-decompose
// action on its next pass.
func (d *Decomposer) Decompose(ctx context.Context, goal *model.Goal, rc *runctx.Context, siblingSummaries []string, previouslyCompletedGoals []string) ([]model.SubGoalSpec, error) {
	if goal.Depth >= rc.Constraints.MaxDepth {
		return nil, nil
	}

	var resp decompositionResponse
	_, err := d.invoker.Invoke(ctx, "decomposition", map[string]any{
		"OriginalObjective":        rc.OriginalObjective,
		"Goal":                     goal,
		"SiblingSummaries":         siblingSummaries,
		"AvailableSources":         rc.Registry.EnabledSources(),
		"PreviouslyCompletedGoals": previouslyCompletedGoals,
		"Constraints":              rc.Constraints,
	}, "decomposition", decompositionSchema, prompt.RoleScoping, &resp)
	if err != nil {
		return nil, err
	}

	sanitized := sanitize(resp.SubGoals)

	rc.Sink.Emit(events.TypeLLMDecompositionResponse, goal.ID, map[string]any{
		"raw_sub_goals": resp.SubGoals,
		"sanitized_count": len(sanitized),
	})

	return sanitized, nil
}

// sanitize coerces non-integer/out-of-range dependency indices to an empty
// list and drops self-references, per §4.7 step 3.
func sanitize(specs []model.SubGoalSpec) []model.SubGoalSpec {
	out := make([]model.SubGoalSpec, len(specs))
	for i, spec := range specs {
		deps := make([]int, 0, len(spec.Dependencies))
		for _, dep := range spec.Dependencies {
			if dep < 0 || dep >= len(specs) || dep == i {
				continue
			}
			deps = append(deps, dep)
		}
		spec.Dependencies = deps
		out[i] = spec
	}
	return out
}
