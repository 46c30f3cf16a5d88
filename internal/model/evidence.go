package model

import "time"

// RawResult is an immutable record of a single source API response item.
// Once inserted into the global index, none of its fields are ever mutated
// (invariant 1 — raw immutability).
type RawResult struct {
	ID              string         `json:"id"`
	APIResponse     map[string]any `json:"api_response"`
	SourceID        string         `json:"source_id"`
	QueryParams     map[string]any `json:"query_params"`
	FetchedAt       time.Time      `json:"fetched_at"`
	ResponseTimeMs  int64          `json:"response_time_ms"`
	Title           string         `json:"title"`
	URL             string         `json:"url,omitempty"`
	RawContent      string         `json:"raw_content"`
	StructuredDate  *time.Time     `json:"structured_date,omitempty"`
	ContentDates    []ContentDate  `json:"content_dates,omitempty"`
}

// ContentDate is a best-effort date extracted from free text; extraction
// failure is not an error, per the design notes.
type ContentDate struct {
	Date    time.Time `json:"date"`
	Context string    `json:"context"`
}

// ProcessedEvidence is a goal-focused projection of a RawResult: facts,
// entities, and a bounded summary safe to pass back into LLM context.
type ProcessedEvidence struct {
	RawResultID       string        `json:"raw_result_id"`
	ExtractedFacts    []string      `json:"extracted_facts"`
	ExtractedEntities []string      `json:"extracted_entities"`
	ExtractedDates    []ContentDate `json:"extracted_dates,omitempty"`
	RelevanceScore    float64       `json:"relevance_score"`
	RelevanceReasoning string       `json:"relevance_reasoning"`
	Summary           string        `json:"summary"`
	GoalID            string        `json:"goal_id"`
	ExtractedByModel  string        `json:"extracted_by_model"`
}

// ExtractionResult is the LLM-produced half of a ProcessedEvidence
// projection (§4.2 Project); the raw id, goal id, and model name are filled
// in by the caller, not asked of the model.
type ExtractionResult struct {
	Summary            string        `json:"summary"`
	ExtractedFacts     []string      `json:"extracted_facts"`
	ExtractedEntities  []string      `json:"extracted_entities"`
	ExtractedDates     []ContentDate `json:"extracted_dates,omitempty"`
	RelevanceScore     float64       `json:"relevance_score"`
	RelevanceReasoning string        `json:"relevance_reasoning"`
}

const maxSummaryLen = 300

// TruncateSummary caps a summary to the LLM-context-safe length without
// ever touching the underlying RawContent (invariant 3 — evidence
// preservation; only LLM-facing projections are bounded).
func TruncateSummary(s string) string {
	if len(s) <= maxSummaryLen {
		return s
	}
	return s[:maxSummaryLen]
}
