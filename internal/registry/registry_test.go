package registry

import (
	"context"
	"testing"

	"researchagent.dev/core/internal/model"
)

type stubAdapter struct {
	meta model.SourceCapability
}

func (s stubAdapter) Metadata() model.SourceCapability { return s.meta }
func (s stubAdapter) IsRelevant(ctx context.Context, question string) bool { return true }
func (s stubAdapter) GenerateQuery(ctx context.Context, question string, hints map[string]any) (map[string]any, error) {
	return map[string]any{"q": question}, nil
}
func (s stubAdapter) ExecuteSearch(ctx context.Context, queryParams map[string]any, apiKey string, limit int) QueryResult {
	return QueryResult{Source: s.meta.ID, Success: true}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	a := stubAdapter{meta: model.SourceCapability{ID: "web"}}
	b := stubAdapter{meta: model.SourceCapability{ID: "web"}}
	if _, err := New([]SourceAdapter{a, b}, nil); err == nil {
		t.Fatal("expected error on duplicate source id")
	}
}

func TestNewRejectsEmptyID(t *testing.T) {
	a := stubAdapter{meta: model.SourceCapability{ID: ""}}
	if _, err := New([]SourceAdapter{a}, nil); err == nil {
		t.Fatal("expected error on empty source id")
	}
}

func TestEnabledSourcesRespectsAllowlist(t *testing.T) {
	a := stubAdapter{meta: model.SourceCapability{ID: "web"}}
	b := stubAdapter{meta: model.SourceCapability{ID: "typesense"}}
	r, err := New([]SourceAdapter{a, b}, []string{"web"})
	if err != nil {
		t.Fatal(err)
	}

	enabled := r.EnabledSources()
	if len(enabled) != 1 || enabled[0].ID != "web" {
		t.Fatalf("expected only web enabled, got %+v", enabled)
	}
	if !r.IsEnabled("web") {
		t.Error("expected web enabled")
	}
	if r.IsEnabled("typesense") {
		t.Error("expected typesense disabled")
	}
	if _, ok := r.Get("typesense"); !ok {
		t.Error("Get should still return disabled adapters")
	}
}

func TestEnabledSourcesNilMeansAllEnabled(t *testing.T) {
	a := stubAdapter{meta: model.SourceCapability{ID: "web"}}
	b := stubAdapter{meta: model.SourceCapability{ID: "typesense"}}
	r, err := New([]SourceAdapter{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.EnabledSources()) != 2 {
		t.Fatalf("expected both enabled by default, got %d", len(r.EnabledSources()))
	}
}

func TestEnabledSourcesSortedByID(t *testing.T) {
	a := stubAdapter{meta: model.SourceCapability{ID: "zeta"}}
	b := stubAdapter{meta: model.SourceCapability{ID: "alpha"}}
	r, err := New([]SourceAdapter{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	enabled := r.EnabledSources()
	if enabled[0].ID != "alpha" || enabled[1].ID != "zeta" {
		t.Fatalf("expected sorted order, got %+v", enabled)
	}
}
