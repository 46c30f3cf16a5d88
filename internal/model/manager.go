package model

// CompletedTaskSummary is the compact per-goal projection the Prioritizer
// and Saturation Detector both consume instead of full Goal/evidence
// objects, keeping their prompts bounded regardless of run size.
type CompletedTaskSummary struct {
	ID               string   `json:"id"`
	Query            string   `json:"query"`
	ResultsCount     int      `json:"results_count"`
	DuplicatesCount  int      `json:"duplicates_count"`
	GapsIdentified   []string `json:"gaps_identified,omitempty"`
}

// RecentTaskSignal feeds the Saturation Detector's "is new evidence still
// showing up" judgment.
type RecentTaskSignal struct {
	ResultsNew       int     `json:"results_new"`
	ResultsDuplicate int     `json:"results_duplicate"`
	CoverageScore    float64 `json:"coverage_score"`
	IncrementalValue string  `json:"incremental_value"`
}

// PendingTaskSummary is what the Prioritizer sees of a goal still waiting
// to run.
type PendingTaskSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// PendingPreview is what the Saturation Detector sees of the pending queue,
// already priced by a prior Prioritizer pass.
type PendingPreview struct {
	Priority            int `json:"priority"`
	EstimatedValue      int `json:"estimated_value"`
	EstimatedRedundancy int `json:"estimated_redundancy"`
}

// PriorityAssignment is one pending goal's score from the Prioritizer.
type PriorityAssignment struct {
	GoalID              string `json:"goal_id"`
	Priority            int    `json:"priority"`
	EstimatedValue       int   `json:"estimated_value"`
	EstimatedRedundancy  int   `json:"estimated_redundancy"`
	Reasoning           string `json:"reasoning"`
}

// PrioritizationResult is the full Prioritizer response: one assignment
// per pending goal plus a free-text read on global coverage.
type PrioritizationResult struct {
	Assignments            []PriorityAssignment `json:"assignments"`
	GlobalCoverageAssessment string               `json:"global_coverage_assessment"`
}

const (
	RecommendationStop           = "stop"
	RecommendationContinueLimited = "continue_limited"
	RecommendationContinueFull    = "continue_full"
)

// SaturationVerdict is the Saturation Detector's run-level judgment —
// distinct from source.go's per-source SaturationDecision.
type SaturationVerdict struct {
	Saturated                bool     `json:"saturated"`
	Confidence               int      `json:"confidence"`
	Rationale                string   `json:"rationale"`
	Recommendation           string   `json:"recommendation"`
	RecommendedAdditionalTasks []string `json:"recommended_additional_tasks,omitempty"`
}

// IsAuthoritative reports whether the verdict clears the confidence bar a
// caller configured for treating "saturated" as binding rather than
// advisory (§4.9: only authoritative when saturated AND confidence meets
// the threshold).
func (v SaturationVerdict) IsAuthoritative(threshold int) bool {
	return v.Saturated && v.Confidence >= threshold
}
