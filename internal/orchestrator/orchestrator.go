// Package orchestrator implements the Recursive Agent Orchestrator
// (§4.10): the top-level loop that owns a run's GoalContext, repeatedly
// prioritizes pending goals, runs the Action Executor, and periodically
// asks the Manager's Saturation Detector whether to keep going. Grounded
// on the teacher's orchestrator.go HandleEngagement: a bounded top-level
// cycle loop with a single place that decides the terminal StopReason.
//
// Recursion (§4.10's "recursive" in the name) falls out of a single
// invariant: a DECOMPOSE result's children are pushed back onto the same
// pending queue, dependency-linked to their siblings by linkDependencies,
// rather than executed inline. The main loop's
// batch selection only ever dispatches goals whose dependencies have all
// reached a terminal status, so a child that itself decomposes re-enters
// the same machinery at depth+1 until MaxDepth forces a leaf action.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"researchagent.dev/core/internal/decomposer"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/executor"
	"researchagent.dev/core/internal/id"
	"researchagent.dev/core/internal/manager"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/ratelimit"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/runctx"
	"researchagent.dev/core/internal/scheduler"
)

type Orchestrator struct {
	executor   *executor.Executor
	decomposer *decomposer.Decomposer
	manager    *manager.Manager

	runID    string
	cooldown *ratelimit.CooldownSet
}

func New(exec *executor.Executor, dec *decomposer.Decomposer, mgr *manager.Manager) *Orchestrator {
	return &Orchestrator{executor: exec, decomposer: dec, manager: mgr}
}

// WithCooldown attaches a durable cross-process rate-limit cooldown set,
// keyed by runID, to every run this Orchestrator executes from now on. A
// caller that never invokes this keeps the default in-memory-only stickiness.
func (o *Orchestrator) WithCooldown(runID string, cooldown *ratelimit.CooldownSet) *Orchestrator {
	o.runID = runID
	o.cooldown = cooldown
	return o
}

// Run executes the full §4.10 algorithm for a single research question and
// returns the finalized ResultBundle.
func (o *Orchestrator) Run(ctx context.Context, question string, reg *registry.Registry, constraints model.Constraints, sink events.Sink) model.ResultBundle {
	rc := runctx.New(question, reg, constraints, sink)
	rc.RunID = o.runID
	rc.Cooldown = o.cooldown
	root := model.NewRootGoal(id.NewPrefixed("goal_"), question)

	allGoals := []*model.Goal{root}
	byID := map[string]*model.Goal{root.ID: root}
	pending := []*model.Goal{root}
	var completedSummaries []model.CompletedTaskSummary
	completedCount := 0

	// Guards allGoals/byID/pending, which scheduler.Run's per-goal callback
	// below mutates from concurrent goroutines when a batch member decomposes.
	var stateMu sync.Mutex

	rc.Sink.Emit(events.TypeResearchStarted, root.ID, map[string]any{"question": question})

	stopReason := model.StopAllGoalsDone

loop:
	for len(pending) > 0 {
		if rc.BudgetExhausted(len(allGoals)) {
			stopReason = model.StopBudgetExhausted
			break
		}

		ready, blocked := partitionReady(pending, byID)
		if len(ready) == 0 {
			// Every remaining pending goal is waiting on an in-flight
			// dependency; nothing to dispatch this pass is a stall, not
			// budget exhaustion, so the run ends rather than spinning.
			stopReason = model.StopAllGoalsDone
			break
		}

		if err := o.manager.Prioritize(ctx, ready, completedSummaries, rc); err != nil {
			slog.WarnContext(ctx, "prioritization failed, proceeding in existing order", "error", err)
		}
		ready = sortByPriority(ready)

		batchSize := constraints.MaxConcurrentTasks
		if batchSize <= 0 {
			batchSize = 1
		}
		if batchSize > len(ready) {
			batchSize = len(ready)
		}
		batch := ready[:batchSize]
		pending = append(blocked, ready[batchSize:]...)

		scheduler.Run(ctx, rc, root.ID, []scheduler.Group{batch}, func(ctx context.Context, goal *model.Goal) model.GoalStatus {
			stateMu.Lock()
			goalsSnapshot := append([]*model.Goal(nil), allGoals...)
			pendingLen := len(pending)
			stateMu.Unlock()

			remainingSeconds := rc.Constraints.MaxTimeSeconds - int(rc.Elapsed().Seconds())
			result := o.executor.Execute(ctx, goal, rc, siblingSummaries(goalsSnapshot, goal), completedDescriptions(goalsSnapshot), pendingLen, remainingSeconds)
			goal.Result = result

			if result.Status == executor.StatusDone && result.Action == model.ActionDecompose && len(result.SubGoalSpecs) > 0 {
				children := materializeChildren(goal, result.SubGoalSpecs)
				// A cycle leaves its children unlinked, so they all become
				// ready together instead of blocking each other forever.
				cyclic := scheduler.HasCycle(result.SubGoalSpecs)
				if !cyclic {
					linkDependencies(children, result.SubGoalSpecs)
				}

				stateMu.Lock()
				for _, c := range children {
					allGoals = append(allGoals, c)
					byID[c.ID] = c
				}
				pending = append(pending, children...)
				stateMu.Unlock()

				rc.Sink.Emit(events.TypeGoalDecomposed, goal.ID, map[string]any{"child_count": len(children)})
				if cyclic {
					slog.WarnContext(ctx, "dependency cycle detected among sub-goals, collapsing to one group", "parent_goal", goal.ID)
				}
			}

			return terminalStatusFor(result)
		})

		for _, goal := range batch {
			completedCount++
			switch goal.Status {
			case model.GoalStatusDone:
				rc.Sink.Emit(events.TypeTaskCompleted, goal.ID, map[string]any{"action": resultAction(goal)})
			case model.GoalStatusSkipped:
				rc.Sink.Emit(events.TypeTaskCompleted, goal.ID, map[string]any{"skipped": true})
			case model.GoalStatusFailed:
				rc.Sink.Emit(events.TypeTaskFailed, goal.ID, map[string]any{})
			}
			completedSummaries = append(completedSummaries, summaryFor(goal, rc))
			o.manager.NoteGoalCompleted()
		}

		if rc.BudgetExhausted(len(allGoals)) {
			stopReason = model.StopBudgetExhausted
			break
		}

		if o.manager.ShouldCheck(rc, completedCount) {
			verdict, err := o.manager.CheckSaturation(ctx, recentSignals(completedSummaries), pendingPreviews(pending), completedCount, len(pending), rc)
			if err != nil {
				slog.WarnContext(ctx, "saturation check failed, continuing", "error", err)
			} else if verdict.IsAuthoritative(constraints.SaturationConfidenceThreshold) {
				stopReason = model.StopSaturated
				break loop
			}
		}
	}

	rc.Sink.Emit(events.TypeResearchComplete, root.ID, map[string]any{"stop_reason": stopReason, "goal_count": len(allGoals)})

	return model.ResultBundle{
		RootGoalID:             root.ID,
		Goals:                  allGoals,
		RawEvidenceCount:       rc.Index.RawCount(),
		ProcessedEvidenceCount: rc.ProcessedEvidenceCount(),
		UsageTotals:            rc.Usage(),
		StopReason:             stopReason,
	}
}

// partitionReady splits pending into goals whose Dependencies have all
// reached a terminal status (ready to dispatch) and the rest (still
// blocked on an in-flight sibling).
func partitionReady(pending []*model.Goal, byID map[string]*model.Goal) (ready, blocked []*model.Goal) {
	for _, g := range pending {
		isReady := true
		for _, depID := range g.Dependencies {
			dep, ok := byID[depID]
			if !ok || !dep.IsTerminal() {
				isReady = false
				break
			}
		}
		if isReady {
			ready = append(ready, g)
		} else {
			blocked = append(blocked, g)
		}
	}
	return ready, blocked
}

func terminalStatusFor(r executor.Result) model.GoalStatus {
	switch r.Status {
	case executor.StatusDone:
		return model.GoalStatusDone
	case executor.StatusSkipped:
		return model.GoalStatusSkipped
	default:
		return model.GoalStatusFailed
	}
}

func resultAction(g *model.Goal) model.ActionType {
	if g.ActionTaken == nil {
		return ""
	}
	return g.ActionTaken.Type
}

func materializeChildren(parent *model.Goal, specs []model.SubGoalSpec) []*model.Goal {
	children := make([]*model.Goal, len(specs))
	for i, spec := range specs {
		parentID := parent.ID
		children[i] = &model.Goal{
			ID:          id.NewPrefixed("goal_"),
			Description: spec.Description,
			Rationale:   spec.Rationale,
			Depth:       parent.Depth + 1,
			ParentID:    &parentID,
			Status:      model.GoalStatusPending,
			Priority:    5,
		}
	}
	return children
}

// linkDependencies turns a SubGoalSpec's integer-index Dependencies into
// goal-id edges once the children's real ids exist, so partitionReady can
// gate dispatch without ever seeing the LLM's index-based references.
func linkDependencies(children []*model.Goal, specs []model.SubGoalSpec) {
	for i, spec := range specs {
		for _, dep := range spec.Dependencies {
			if dep < 0 || dep >= len(children) || dep == i {
				continue
			}
			children[i].Dependencies = append(children[i].Dependencies, children[dep].ID)
		}
	}
}

func sortByPriority(goals []*model.Goal) []*model.Goal {
	out := make([]*model.Goal, len(goals))
	copy(out, goals)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessPriority(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// lessPriority orders lower Priority numbers (higher urgency, per the
// Prioritizer's 1=highest..10=lowest scale) first. Unscored goals
// (Priority 0, never sent through the Prioritizer) sort last.
func lessPriority(a, b *model.Goal) bool {
	if a.Priority == 0 {
		return false
	}
	if b.Priority == 0 {
		return true
	}
	return a.Priority < b.Priority
}

func siblingSummaries(all []*model.Goal, self *model.Goal) []string {
	var out []string
	for _, g := range all {
		if g.ID == self.ID || !g.IsTerminal() {
			continue
		}
		sameParent := (g.ParentID == nil && self.ParentID == nil) ||
			(g.ParentID != nil && self.ParentID != nil && *g.ParentID == *self.ParentID)
		if sameParent {
			out = append(out, g.Description)
		}
	}
	return out
}

func completedDescriptions(all []*model.Goal) []string {
	var out []string
	for _, g := range all {
		if g.Status == model.GoalStatusDone {
			out = append(out, g.Description)
		}
	}
	return out
}

func summaryFor(g *model.Goal, rc *runctx.Context) model.CompletedTaskSummary {
	raws := rc.Index.ListForGoal(g.ID)
	return model.CompletedTaskSummary{
		ID:           g.ID,
		Query:        g.Description,
		ResultsCount: len(raws),
	}
}

func recentSignals(summaries []model.CompletedTaskSummary) []model.RecentTaskSignal {
	start := 0
	if len(summaries) > 5 {
		start = len(summaries) - 5
	}
	out := make([]model.RecentTaskSignal, 0, len(summaries)-start)
	for _, s := range summaries[start:] {
		incremental := "low"
		if s.ResultsCount > 0 {
			incremental = "medium"
		}
		out = append(out, model.RecentTaskSignal{
			ResultsNew:       s.ResultsCount,
			ResultsDuplicate: s.DuplicatesCount,
			IncrementalValue: incremental,
		})
	}
	return out
}

func pendingPreviews(pending []*model.Goal) []model.PendingPreview {
	out := make([]model.PendingPreview, len(pending))
	for i, g := range pending {
		out[i] = model.PendingPreview{
			Priority:            g.Priority,
			EstimatedValue:      g.EstimatedValue,
			EstimatedRedundancy: g.EstimatedRedundancy,
		}
	}
	return out
}
