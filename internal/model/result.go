package model

// StopReason explains why the orchestrator's main loop ended.
type StopReason string

const (
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopSaturated       StopReason = "saturated"
	StopAllGoalsDone    StopReason = "all_goals_done"
)

// Usage accumulates LLM token/cost accounting across a run. It is
// informational, never a hard gate, unless a caller configures otherwise.
type Usage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Calls            int64   `json:"calls"`
}

// Add merges another usage record in place.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.EstimatedCostUSD += o.EstimatedCostUSD
	u.Calls += o.Calls
}

// ResultBundle is the orchestrator's terminal output: every goal, the
// evidence counts, usage totals, and why the run stopped.
type ResultBundle struct {
	RootGoalID              string     `json:"root_goal_id"`
	Goals                   []*Goal    `json:"goals"`
	RawEvidenceCount        int        `json:"raw_evidence_count"`
	ProcessedEvidenceCount  int        `json:"processed_evidence_count"`
	UsageTotals             Usage      `json:"usage_totals"`
	EventsEmitted           int        `json:"events_emitted"`
	StopReason              StopReason `json:"stop_reason"`
}
