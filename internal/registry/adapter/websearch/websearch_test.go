package websearch

import (
	"context"
	"testing"
)

func TestGenerateQueryReturnsNilForEmptyQuestion(t *testing.T) {
	a := New("http://example.invalid/search", nil)
	q, err := a.GenerateQuery(context.Background(), "   ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if q != nil {
		t.Fatalf("expected nil query for blank question, got %+v", q)
	}
}

func TestGenerateQueryAppliesSiteHint(t *testing.T) {
	a := New("http://example.invalid/search", nil)
	q, err := a.GenerateQuery(context.Background(), "merger timeline", map[string]any{"site": "sec.gov"})
	if err != nil {
		t.Fatal(err)
	}
	if q["q"] != "merger timeline site:sec.gov" {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestIsRelevantRejectsBlank(t *testing.T) {
	a := New("http://example.invalid/search", nil)
	if a.IsRelevant(context.Background(), "  ") {
		t.Error("expected blank question to be irrelevant")
	}
	if !a.IsRelevant(context.Background(), "who owns acme corp") {
		t.Error("expected non-blank question to be relevant")
	}
}

func TestExecuteSearchRejectsMissingQuery(t *testing.T) {
	a := New("http://example.invalid/search", nil)
	res := a.ExecuteSearch(context.Background(), map[string]any{}, "", 10)
	if res.Success {
		t.Fatal("expected failure for missing query param")
	}
}
