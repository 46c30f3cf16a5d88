package decomposer

import (
	"context"
	"testing"

	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/runctx"
)

type noCallClient struct{}

func (noCallClient) Chat(ctx context.Context, req llmclient.Request, result any) (*llmclient.Response, error) {
	panic("decomposer must not invoke the LLM once the goal is at max depth")
}
func (noCallClient) Model() string { return "no-call" }

func TestDecomposeReturnsEmptyAtMaxDepth(t *testing.T) {
	reg, err := registry.New(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	constraints := model.DefaultConstraints()
	constraints.MaxDepth = 2
	rc := runctx.New("q", reg, constraints, events.NullSink{})

	goal := &model.Goal{ID: "g1", Description: "deep goal", Depth: 2}
	d := New(prompt.NewInvoker(noCallClient{}, nil))

	subs, err := d.Decompose(context.Background(), goal, rc, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if subs != nil {
		t.Fatalf("expected nil sub-goals at max depth, got %+v", subs)
	}
}

func TestSanitizeDropsOutOfRangeAndSelfReferences(t *testing.T) {
	specs := []model.SubGoalSpec{
		{Description: "a", Dependencies: []int{-1, 5, 0}},
		{Description: "b", Dependencies: []int{0}},
	}
	out := sanitize(specs)

	if len(out[0].Dependencies) != 0 {
		t.Fatalf("expected spec 0's invalid/self deps dropped, got %v", out[0].Dependencies)
	}
	if len(out[1].Dependencies) != 1 || out[1].Dependencies[0] != 0 {
		t.Fatalf("expected spec 1 to keep valid dependency on 0, got %v", out[1].Dependencies)
	}
}

func TestSanitizePreservesEmptyDependencies(t *testing.T) {
	specs := []model.SubGoalSpec{{Description: "solo", Dependencies: nil}}
	out := sanitize(specs)
	if len(out[0].Dependencies) != 0 {
		t.Fatalf("expected no dependencies, got %v", out[0].Dependencies)
	}
}
