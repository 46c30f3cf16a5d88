package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments serving the PURPOSE section's
// "cost accounting" requirement, which spec.md names but assigns to no
// specific component — these counters/histograms are the ambient-stack home
// for it.
type Metrics struct {
	LLMTokensTotal      *prometheus.CounterVec
	LLMCostUSDTotal      *prometheus.CounterVec
	SaturationIterations *prometheus.HistogramVec
	GoalsCompletedTotal  *prometheus.CounterVec
	EvidenceRawTotal     prometheus.Counter
}

// NewMetrics registers every instrument against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research_agent",
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed, by role and kind (prompt/completion).",
		}, []string{"role", "kind"}),
		LLMCostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research_agent",
			Name:      "llm_cost_usd_total",
			Help:      "Estimated LLM spend in USD, by role.",
		}, []string{"role"}),
		SaturationIterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "research_agent",
			Name:      "saturation_iterations",
			Help:      "Number of queries issued per source saturation session.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"source_id", "exit_reason"}),
		GoalsCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research_agent",
			Name:      "goals_completed_total",
			Help:      "Goals that reached a terminal status, by status.",
		}, []string{"status"}),
		EvidenceRawTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "research_agent",
			Name:      "evidence_raw_total",
			Help:      "Distinct raw results inserted into the global evidence index.",
		}),
	}
}
