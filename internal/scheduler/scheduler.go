// Package scheduler implements the DAG Scheduler (§4.8): topological,
// level-based batching of a parent goal's sub-goals into dependency groups,
// with a cycle-collapse safety valve. Grounded on the other_examples
// go-research orchestrator's executeDAG (ready-task polling, semaphore-free
// goroutine-per-task fan-out with a mutex-guarded results map), generalized
// from a single flat ready-set into explicit level batches so the scheduler
// can emit a stable group structure up front rather than discovering it
// task-by-task.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/runctx"
)

// Group is one batch of goals with no unmet intra-batch dependencies,
// dispatched concurrently.
type Group []*model.Goal

// Schedule computes dependency groups over subs, resolving each
// SubGoalSpec's integer dependency indices into edges between the newly
// minted goal ids. Per §4.8 step 3, a remaining cycle collapses into one
// final group rather than stalling scheduling.
func Schedule(goals []*model.Goal, specs []model.SubGoalSpec) []Group {
	n := len(goals)
	if n == 0 {
		return nil
	}

	// dependents[i] = indices that depend on i; indegree[i] = unmet dep count.
	dependents := make([][]int, n)
	indegree := make([]int, n)
	for i, spec := range specs {
		for _, dep := range spec.Dependencies {
			if dep < 0 || dep >= n || dep == i {
				continue
			}
			dependents[dep] = append(dependents[dep], i)
			indegree[i]++
		}
	}

	done := make([]bool, n)
	var groups []Group
	remaining := n

	for remaining > 0 {
		var levelIdx []int
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				levelIdx = append(levelIdx, i)
			}
		}

		if len(levelIdx) == 0 {
			// Cycle: collapse everything still outstanding into one group.
			for i := 0; i < n; i++ {
				if !done[i] {
					levelIdx = append(levelIdx, i)
				}
			}
		}

		sort.Ints(levelIdx)
		group := make(Group, 0, len(levelIdx))
		for _, i := range levelIdx {
			group = append(group, goals[i])
			done[i] = true
			remaining--
		}
		for _, i := range levelIdx {
			for _, dep := range dependents[i] {
				indegree[dep]--
			}
		}
		groups = append(groups, group)
	}

	return groups
}

// HasCycle reports whether resolving specs' dependency graph required the
// collapse safety valve (more than one node left with no ready predecessor
// at some point). Callers use this to decide whether to emit a degraded-
// contract warning event.
func HasCycle(specs []model.SubGoalSpec) bool {
	n := len(specs)
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, spec := range specs {
		for _, dep := range spec.Dependencies {
			if dep < 0 || dep >= n || dep == i {
				continue
			}
			dependents[dep] = append(dependents[dep], i)
			indegree[i]++
		}
	}
	done := make([]bool, n)
	remaining := n
	for remaining > 0 {
		progressed := false
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				progressed = true
			}
		}
		if !progressed {
			return true
		}
		var ready []int
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				ready = append(ready, i)
			}
		}
		for _, i := range ready {
			done[i] = true
			remaining--
			for _, dep := range dependents[i] {
				indegree[dep]--
			}
		}
	}
	return false
}

// GoalExecutor runs the Action Executor (or equivalent) against a single
// goal, returning whether it should be considered done, failed, or skipped.
// The scheduler only cares about the terminal status, not what produced it.
type GoalExecutor func(ctx context.Context, goal *model.Goal) model.GoalStatus

// Run dispatches each group in order; within a group, members execute
// concurrently via bounded goroutines (§5's parallel-threads fan-out). A
// goal's failure never blocks its group peers or downstream groups —
// downstream goals still run and simply see the failure as context via the
// goal's own terminal status.
func Run(ctx context.Context, rc *runctx.Context, parentID string, groups []Group, run GoalExecutor) {
	maxConcurrent := rc.Constraints.MaxConcurrentTasks
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	groupSizes := make([]int, len(groups))
	for gi, group := range groups {
		groupSizes[gi] = len(group)

		sem := make(chan struct{}, maxConcurrent)
		var wg sync.WaitGroup
		for _, goal := range group {
			wg.Add(1)
			sem <- struct{}{}
			go func(g *model.Goal) {
				defer wg.Done()
				defer func() { <-sem }()

				g.Transition(model.GoalStatusInProgress)
				status := run(ctx, g)
				g.Transition(status)
			}(goal)
		}
		wg.Wait()
	}

	rc.Sink.Emit(events.TypeDependencyGroupsExecution, parentID, map[string]any{
		"group_count": len(groups),
		"group_sizes": groupSizes,
	})
}
