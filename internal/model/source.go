package model

// SourceCapability describes a registered data source: what it is, whether
// it needs credentials, and how the saturator should budget queries
// against it.
type SourceCapability struct {
	ID                  string         `json:"id"`
	DisplayName         string         `json:"display_name"`
	Category            string         `json:"category"`
	Description         string         `json:"description"`
	RequiresAPIKey      bool           `json:"requires_api_key"`
	Characteristics     map[string]any `json:"characteristics,omitempty"`
	QueryStrategies     []string       `json:"query_strategies,omitempty"`
	TypicalResultCount  int            `json:"typical_result_count"`
	RecommendedMaxQueries int          `json:"recommended_max_queries"`
}

// QueryAttempt records one outbound query issued during a source
// saturation session.
type QueryAttempt struct {
	QueryNum         int       `json:"query_num"`
	Query            string    `json:"query"`
	Reasoning        string    `json:"reasoning"`
	ResultsTotal     int       `json:"results_total"`
	ResultsAccepted  int       `json:"results_accepted"`
	ResultsRejected  int       `json:"results_rejected"`
	ResultsDuplicate int       `json:"results_duplicate"`
	RejectionThemes  []string  `json:"rejection_themes,omitempty"`
	Effectiveness    float64   `json:"effectiveness"`
	Error            *APIError `json:"error,omitempty"`
}

// SaturationDecision is the LLM-produced verdict on whether to keep
// querying a source or stop.
type SaturationDecision struct {
	Decision           string   `json:"decision"` // CONTINUE | SATURATED
	Reasoning          string   `json:"reasoning"`
	Confidence         int      `json:"confidence"`
	ExistenceConfidence int     `json:"existence_confidence"`
	NextQuery          string   `json:"next_query,omitempty"`
	NextQueryReasoning string   `json:"next_query_reasoning,omitempty"`
	ExpectedValue      string   `json:"expected_value"` // high | medium | low
	RemainingGaps      []string `json:"remaining_gaps,omitempty"`
}

const (
	SaturationContinue  = "CONTINUE"
	SaturationSaturated = "SATURATED"
)
