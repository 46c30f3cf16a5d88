// Package events implements the §6.3 JSONL event log: a flat, append-only
// stream every component writes structured progress records to. The event
// log writer itself is explicitly out of scope per the specification (any
// io.Writer-backed sink satisfies the contract); this package supplies the
// Sink interface plus one concrete JSONL writer.
package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Known event types per §6.3. The list is explicitly non-exhaustive —
// components may emit additional types — but these names are stable and
// consumers may depend on them.
const (
	TypeResearchStarted           = "research_started"
	TypeGoalDecomposed            = "goal_decomposed"
	TypeLLMDecompositionResponse  = "llm_decomposition_response"
	TypeDependencyGroupsExecution = "dependency_groups_execution"
	TypeTaskPrioritization        = "task_prioritization"
	TypeActionSelected            = "action_selected"
	TypeSourceSaturationStart     = "source_saturation_start"
	TypeQueryAttempt              = "query_attempt"
	TypeSourceSaturationComplete  = "source_saturation_complete"
	TypeEvidenceInserted          = "evidence_inserted"
	TypeGlobalEvidenceSelection   = "global_evidence_selection"
	TypeSaturationCheck           = "saturation_check"
	TypeTaskCompleted              = "task_completed"
	TypeTaskFailed                 = "task_failed"
	TypeResearchComplete            = "research_complete"
)

// Event is one JSONL record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	GoalID    string         `json:"goal_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink is the run-scoped event_sink callback from the GoalContext glossary
// entry. Implementations must be safe for concurrent use — goals in the
// same dependency group emit events from separate goroutines.
type Sink interface {
	Emit(eventType, goalID string, data map[string]any)
}

// JSONLWriter appends one json-encoded Event per line to an underlying
// io.Writer, guarded by a mutex since writes interleave across goroutines
// (§5's parallel-threads model).
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w), now: time.Now}
}

func (w *JSONLWriter) Emit(eventType, goalID string, data map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(Event{
		Timestamp: w.now(),
		EventType: eventType,
		GoalID:    goalID,
		Data:      data,
	})
}

// NullSink discards every event; useful in tests that don't care about the
// event stream.
type NullSink struct{}

func (NullSink) Emit(string, string, map[string]any) {}

// Collector accumulates events in memory, for tests that assert on emitted
// event sequences without standing up a file.
type Collector struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

func (c *Collector) Emit(eventType, goalID string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{
		Timestamp: c.now(),
		EventType: eventType,
		GoalID:    goalID,
		Data:      data,
	})
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
