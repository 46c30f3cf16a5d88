package model

import "time"

// GoalStatus is the finite-state diagram from the goal lifecycle:
// pending -> in_progress -> {done | failed | skipped}. No back-edges.
type GoalStatus string

const (
	GoalStatusPending    GoalStatus = "pending"
	GoalStatusInProgress GoalStatus = "in_progress"
	GoalStatusDone       GoalStatus = "done"
	GoalStatusFailed     GoalStatus = "failed"
	GoalStatusSkipped    GoalStatus = "skipped"
)

// CanTransitionTo enforces the no-back-edges rule (I8).
func (s GoalStatus) CanTransitionTo(next GoalStatus) bool {
	switch s {
	case GoalStatusPending:
		return next == GoalStatusInProgress
	case GoalStatusInProgress:
		return next == GoalStatusDone || next == GoalStatusFailed || next == GoalStatusSkipped
	default:
		return false
	}
}

// ActionType enumerates the five verbs the Action Selector may choose.
type ActionType string

const (
	ActionDecompose   ActionType = "DECOMPOSE"
	ActionAPICall     ActionType = "API_CALL"
	ActionWebSearch   ActionType = "WEB_SEARCH"
	ActionAnalyze     ActionType = "ANALYZE"
	ActionSynthesize  ActionType = "SYNTHESIZE"
)

// IsIOAction reports whether the action performs external I/O against a
// named source (and therefore is subject to the rate-limited-source mask).
func (a ActionType) IsIOAction() bool {
	return a == ActionAPICall || a == ActionWebSearch
}

// Goal is a DAG node in the research tree.
type Goal struct {
	ID                string     `json:"id"`
	Description       string     `json:"description"`
	Rationale         string     `json:"rationale"`
	Depth             int        `json:"depth"`
	ParentID          *string    `json:"parent_id,omitempty"`
	Dependencies      []string   `json:"dependencies"`
	Priority          int        `json:"priority"`
	PriorityReasoning string     `json:"priority_reasoning,omitempty"`
	EstimatedValue      int      `json:"estimated_value"`
	EstimatedRedundancy int      `json:"estimated_redundancy"`
	Status            GoalStatus `json:"status"`
	ActionTaken       *Action    `json:"action_taken,omitempty"`
	Result            any        `json:"result,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// NewRootGoal builds the single root goal from the user's question.
func NewRootGoal(id, question string) *Goal {
	return &Goal{
		ID:          id,
		Description: question,
		Rationale:   "root objective",
		Depth:       0,
		Priority:    5,
		Status:      GoalStatusPending,
	}
}

// Transition applies a status change, refusing any edge that violates I8.
func (g *Goal) Transition(next GoalStatus) bool {
	if !g.Status.CanTransitionTo(next) {
		return false
	}
	now := time.Now()
	if next == GoalStatusInProgress {
		g.StartedAt = &now
	}
	if next == GoalStatusDone || next == GoalStatusFailed || next == GoalStatusSkipped {
		g.FinishedAt = &now
	}
	g.Status = next
	return true
}

// IsTerminal reports whether the goal has left {pending, in_progress}.
func (g *Goal) IsTerminal() bool {
	return g.Status == GoalStatusDone || g.Status == GoalStatusFailed || g.Status == GoalStatusSkipped
}
