// Package model holds the core data entities shared across the research
// agent: goals, actions, evidence, and the run-scoped constraints and
// context that bind them together.
package model

// Constraints are immutable for the lifetime of a run. The Orchestrator
// owns them; no other component may mutate them.
type Constraints struct {
	MaxDepth                     int            `json:"max_depth"`
	MaxGoals                     int            `json:"max_goals"`
	MaxTimeSeconds                int           `json:"max_time_seconds"`
	MaxQueriesPerSource           map[string]int `json:"max_queries_per_source"`
	DefaultMaxQueriesPerSource    int            `json:"default_max_queries_per_source"`
	MaxTimePerSourceSeconds       int            `json:"max_time_per_source_seconds"`
	MaxReformulationAttempts      int            `json:"max_reformulation_attempts"`
	RateLimitCooldownSeconds      int            `json:"rate_limit_cooldown_seconds"`
	SaturationCheckInterval       int            `json:"saturation_check_interval"`
	SaturationConfidenceThreshold int            `json:"saturation_confidence_threshold"`
	MaxConcurrentTasks            int            `json:"max_concurrent_tasks"`
}

// MaxQueriesFor resolves the per-source query ceiling, falling back to the
// constraint's default when the source has no specific entry.
func (c Constraints) MaxQueriesFor(sourceID string) int {
	if n, ok := c.MaxQueriesPerSource[sourceID]; ok {
		return n
	}
	if c.DefaultMaxQueriesPerSource > 0 {
		return c.DefaultMaxQueriesPerSource
	}
	return 5
}

// DefaultConstraints mirrors the defaults called out across the component
// design notes (max_concurrent_tasks default 4, saturation thresholds, etc).
func DefaultConstraints() Constraints {
	return Constraints{
		MaxDepth:                      3,
		MaxGoals:                      40,
		MaxTimeSeconds:                900,
		MaxQueriesPerSource:           map[string]int{},
		DefaultMaxQueriesPerSource:    5,
		MaxTimePerSourceSeconds:       180,
		MaxReformulationAttempts:      2,
		RateLimitCooldownSeconds:      300,
		SaturationCheckInterval:       3,
		SaturationConfidenceThreshold: 70,
		MaxConcurrentTasks:            4,
	}
}
