package manager

import (
	"context"
	"encoding/json"
	"testing"

	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/runctx"
)

type scriptedClient struct {
	response string
	calls    int
}

func (c *scriptedClient) Chat(ctx context.Context, req llmclient.Request, result any) (*llmclient.Response, error) {
	c.calls++
	if err := json.Unmarshal([]byte(c.response), result); err != nil {
		return nil, err
	}
	return &llmclient.Response{}, nil
}
func (c *scriptedClient) Model() string { return "scripted" }

type panicClient struct{}

func (panicClient) Chat(ctx context.Context, req llmclient.Request, result any) (*llmclient.Response, error) {
	panic("must not invoke the LLM for a single pending goal")
}
func (panicClient) Model() string { return "no-call" }

func newTestContext(t *testing.T) *runctx.Context {
	t.Helper()
	reg, err := registry.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return runctx.New("q", reg, model.DefaultConstraints(), events.NullSink{})
}

func TestPrioritizeSkipsLLMForSinglePendingGoal(t *testing.T) {
	rc := newTestContext(t)
	m := New(prompt.NewInvoker(panicClient{}, nil))
	goal := &model.Goal{ID: "g1", Description: "only one"}

	if err := m.Prioritize(context.Background(), []*model.Goal{goal}, nil, rc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if goal.Priority != 0 {
		t.Fatalf("expected the lone goal's priority untouched, got %d", goal.Priority)
	}
}

func TestPrioritizeAppliesAssignmentsByGoalID(t *testing.T) {
	rc := newTestContext(t)
	client := &scriptedClient{response: `{
		"assignments": [
			{"goal_id":"g1","priority":2,"estimated_value":80,"estimated_redundancy":10,"reasoning":"high value"},
			{"goal_id":"g2","priority":5,"estimated_value":30,"estimated_redundancy":60,"reasoning":"likely redundant"}
		],
		"global_coverage_assessment": "broad but shallow"
	}`}
	m := New(prompt.NewInvoker(client, nil))

	g1 := &model.Goal{ID: "g1", Description: "a"}
	g2 := &model.Goal{ID: "g2", Description: "b"}
	err := m.Prioritize(context.Background(), []*model.Goal{g1, g2}, nil, rc)
	if err != nil {
		t.Fatal(err)
	}
	if g1.Priority != 2 || g1.EstimatedValue != 80 {
		t.Fatalf("expected g1 scored from assignment, got %+v", g1)
	}
	if g2.Priority != 5 || g2.EstimatedRedundancy != 60 {
		t.Fatalf("expected g2 scored from assignment, got %+v", g2)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", client.calls)
	}
}

func TestShouldCheckRequiresMinimumCompletedAndInterval(t *testing.T) {
	rc := newTestContext(t)
	rc.Constraints.SaturationCheckInterval = 3
	m := New(prompt.NewInvoker(panicClient{}, nil))

	if m.ShouldCheck(rc, 2) {
		t.Fatal("expected no check before 3 goals have completed, regardless of interval")
	}

	m.NoteGoalCompleted()
	m.NoteGoalCompleted()
	if m.ShouldCheck(rc, 5) {
		t.Fatal("expected no check before the interval count is reached")
	}

	m.NoteGoalCompleted()
	if !m.ShouldCheck(rc, 5) {
		t.Fatal("expected a check once the interval count is reached")
	}
}

func TestShouldCheckDisabledByZeroInterval(t *testing.T) {
	rc := newTestContext(t)
	rc.Constraints.SaturationCheckInterval = 0
	m := New(prompt.NewInvoker(panicClient{}, nil))

	m.NoteGoalCompleted()
	m.NoteGoalCompleted()
	m.NoteGoalCompleted()
	m.NoteGoalCompleted()
	if m.ShouldCheck(rc, 10) {
		t.Fatal("expected a zero saturation_check_interval to disable the detector regardless of completions")
	}
}

func TestCheckSaturationResetsIntervalCounter(t *testing.T) {
	rc := newTestContext(t)
	client := &scriptedClient{response: `{
		"saturated": true, "confidence": 85, "rationale": "no new facts in 3 rounds",
		"recommendation": "stop"
	}`}
	m := New(prompt.NewInvoker(client, nil))
	m.NoteGoalCompleted()
	m.NoteGoalCompleted()
	m.NoteGoalCompleted()

	verdict, err := m.CheckSaturation(context.Background(), nil, nil, 5, 2, rc)
	if err != nil {
		t.Fatal(err)
	}
	if !verdict.IsAuthoritative(70) {
		t.Fatalf("expected a saturated, high-confidence verdict to be authoritative, got %+v", verdict)
	}
	if m.ShouldCheck(rc, 5) {
		t.Fatal("expected the interval counter to reset after a check")
	}
}

func TestSaturationVerdictNotAuthoritativeBelowThreshold(t *testing.T) {
	v := model.SaturationVerdict{Saturated: true, Confidence: 50}
	if v.IsAuthoritative(70) {
		t.Fatal("expected low-confidence saturated verdict to be non-authoritative")
	}
}
