// Package manager implements the Manager (§4.9): a Prioritizer that scores
// pending goals before each batch dispatch, and a Saturation Detector that
// periodically asks whether the run as a whole has stopped finding
// anything new. Grounded on the teacher's explore_agent.go soft/hard-limit
// idiom (a termination signal the caller can treat as advisory or as a
// hard stop depending on confidence), generalized from token budgets to
// the saturation-confidence threshold in §4.9.
package manager

import (
	"context"
	"fmt"

	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/runctx"
)

var (
	prioritizationSchema = llmclient.GenerateSchema[model.PrioritizationResult]()
	saturationSchema     = llmclient.GenerateSchema[model.SaturationVerdict]()
)

type Manager struct {
	invoker             *prompt.Invoker
	completedSinceCheck int
}

func New(invoker *prompt.Invoker) *Manager {
	return &Manager{invoker: invoker}
}

// Prioritize scores every pending goal. With a single pending goal the
// call is skipped entirely (§4.9 shortcut) — there is nothing to rank.
func (m *Manager) Prioritize(ctx context.Context, pending []*model.Goal, completed []model.CompletedTaskSummary, rc *runctx.Context) error {
	if len(pending) <= 1 {
		return nil
	}

	pendingSummaries := make([]model.PendingTaskSummary, len(pending))
	for i, g := range pending {
		pendingSummaries[i] = model.PendingTaskSummary{ID: g.ID, Description: g.Description}
	}

	var resp model.PrioritizationResult
	_, err := m.invoker.Invoke(ctx, "task_prioritization", map[string]any{
		"ResearchQuestion":       rc.OriginalObjective,
		"ElapsedMinutes":         int(rc.Elapsed().Minutes()),
		"DeduplicationRate":      deduplicationRate(completed),
		"CompletedTaskSummaries": completed,
		"PendingTaskSummaries":   pendingSummaries,
		"GlobalCoverageSummary":  globalCoverageSummary(rc),
	}, "task_prioritization", prioritizationSchema, prompt.RoleScoping, &resp)
	if err != nil {
		return err
	}

	byID := make(map[string]*model.Goal, len(pending))
	for _, g := range pending {
		byID[g.ID] = g
	}
	for _, a := range resp.Assignments {
		g, ok := byID[a.GoalID]
		if !ok {
			continue
		}
		g.Priority = a.Priority
		g.PriorityReasoning = a.Reasoning
		g.EstimatedValue = a.EstimatedValue
		g.EstimatedRedundancy = a.EstimatedRedundancy
	}

	rc.Sink.Emit(events.TypeTaskPrioritization, "", map[string]any{
		"assignment_count":           len(resp.Assignments),
		"global_coverage_assessment": resp.GlobalCoverageAssessment,
	})
	return nil
}

// NoteGoalCompleted advances the saturation check counter. ShouldCheck
// reports true once every SaturationCheckInterval completions, and never
// before at least 3 goals have completed (too little signal before then).
func (m *Manager) NoteGoalCompleted() {
	m.completedSinceCheck++
}

// ShouldCheck reports whether the Saturation Detector should run now. A
// SaturationCheckInterval of 0 disables the detector entirely (§8) — the
// run proceeds until its other stop conditions fire.
func (m *Manager) ShouldCheck(rc *runctx.Context, totalCompleted int) bool {
	interval := rc.Constraints.SaturationCheckInterval
	if interval == 0 {
		return false
	}
	if totalCompleted < 3 {
		return false
	}
	return m.completedSinceCheck >= interval
}

// CheckSaturation invokes the Saturation Detector and resets the interval
// counter regardless of the verdict — the cadence is fixed, not adaptive.
func (m *Manager) CheckSaturation(ctx context.Context, recent []model.RecentTaskSignal, pendingPreview []model.PendingPreview, totalCompleted, totalPending int, rc *runctx.Context) (model.SaturationVerdict, error) {
	m.completedSinceCheck = 0

	var resp model.SaturationVerdict
	_, err := m.invoker.Invoke(ctx, "saturation_detection", map[string]any{
		"RecentTasks":    recent,
		"PendingPreview": pendingPreview,
		"TotalCompleted": totalCompleted,
		"TotalPending":   totalPending,
	}, "saturation_detection", saturationSchema, prompt.RoleScoping, &resp)
	if err != nil {
		return model.SaturationVerdict{}, err
	}

	rc.Sink.Emit(events.TypeSaturationCheck, "", map[string]any{
		"saturated":      resp.Saturated,
		"confidence":     resp.Confidence,
		"recommendation": resp.Recommendation,
	})
	return resp, nil
}

func deduplicationRate(completed []model.CompletedTaskSummary) float64 {
	total, duplicates := 0, 0
	for _, c := range completed {
		total += c.ResultsCount + c.DuplicatesCount
		duplicates += c.DuplicatesCount
	}
	if total == 0 {
		return 0
	}
	return float64(duplicates) / float64(total)
}

func globalCoverageSummary(rc *runctx.Context) string {
	return fmt.Sprintf("%d distinct raw results indexed across %d rate-limited source(s)",
		rc.Index.RawCount(), len(rc.RateLimitedSources()))
}
