package saturator

import "researchagent.dev/core/internal/model"

// ExitReason enumerates why a saturation loop stopped, per §4.5. The set is
// mutually exclusive and stable — consumers of the event log key off it.
type ExitReason string

const (
	ExitLLMSaturated        ExitReason = "llm_saturated"
	ExitMaxQueriesReached   ExitReason = "max_queries_reached"
	ExitTimeLimitReached    ExitReason = "time_limit_reached"
	ExitRateLimited         ExitReason = "rate_limited"
	ExitUnfixableError      ExitReason = "unfixable_error"
	ExitEmptyQuerySuggestion ExitReason = "empty_query_suggestion"
	ExitQueryGenerationError ExitReason = "query_generation_error"
)

// Result is the Source Saturator's public contract return value:
// saturate(goal, source, context) -> (raw ids inserted, query attempts).
type Result struct {
	InsertedRawIDs []string
	QueryHistory   []model.QueryAttempt
	ExitReason     ExitReason
	Confidence     int
}

// initialQueryResponse is the schema for the "initial_query" template.
type initialQueryResponse struct {
	Query     string `json:"query"`
	Reasoning string `json:"reasoning"`
}

// historyEntry is the trimmed, context-bloat-avoiding projection of a past
// QueryAttempt fed back into the "source_saturation" prompt.
type historyEntry struct {
	Query           string   `json:"query"`
	ResultsTotal    int      `json:"results_total"`
	ResultsAccepted int      `json:"results_accepted"`
	Effectiveness   float64  `json:"effectiveness"`
	RejectionThemes []string `json:"rejection_themes,omitempty"`
}

// filterDecision is one per-result verdict from the "result_filtering" template.
type filterDecision struct {
	Index          int     `json:"index"`
	Accept         bool    `json:"accept"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning"`
}

// filterResponse is the schema for the "result_filtering" template.
type filterResponse struct {
	Decisions       []filterDecision `json:"decisions"`
	RejectionThemes []string         `json:"rejection_themes,omitempty"`
	RemainingGaps   []string         `json:"remaining_gaps,omitempty"`
	KeyInsights     []string         `json:"key_insights,omitempty"`
}
