package saturator

import (
	"context"
	"encoding/json"
	"testing"

	"researchagent.dev/core/internal/errclass"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/runctx"
)

// scriptedClient replays a fixed sequence of JSON responses in call order,
// whatever template is being invoked, repeating the last entry for any call
// past the end of the script.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, req llmclient.Request, result any) (*llmclient.Response, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	if err := json.Unmarshal([]byte(c.responses[idx]), result); err != nil {
		return nil, err
	}
	return &llmclient.Response{PromptTokens: 10, CompletionTokens: 10}, nil
}

func (c *scriptedClient) Model() string { return "scripted" }

type fakeAdapter struct {
	meta      model.SourceCapability
	responses []registry.QueryResult
	calls     int
}

func (a *fakeAdapter) Metadata() model.SourceCapability { return a.meta }
func (a *fakeAdapter) IsRelevant(ctx context.Context, q string) bool { return true }
func (a *fakeAdapter) GenerateQuery(ctx context.Context, q string, hints map[string]any) (map[string]any, error) {
	return map[string]any{"q": q}, nil
}
func (a *fakeAdapter) ExecuteSearch(ctx context.Context, params map[string]any, apiKey string, limit int) registry.QueryResult {
	idx := a.calls
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	a.calls++
	return a.responses[idx]
}

func newTestContext(t *testing.T, adapter registry.SourceAdapter) (*runctx.Context, *events.Collector) {
	t.Helper()
	reg, err := registry.New([]registry.SourceAdapter{adapter}, nil)
	if err != nil {
		t.Fatal(err)
	}
	collector := events.NewCollector()
	rc := runctx.New("find the acquisition timeline", reg, model.DefaultConstraints(), collector)
	return rc, collector
}

func TestSaturateExitsOnRateLimit(t *testing.T) {
	adapter := &fakeAdapter{
		meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 10},
		responses: []registry.QueryResult{
			{Source: "web_search", Success: false, Error: "too many requests", HTTPCode: intPtr(429)},
		},
	}
	rc, _ := newTestContext(t, adapter)

	client := &scriptedClient{responses: []string{`{"query":"acme acquisition","reasoning":"first pass"}`}}
	inv := prompt.NewInvoker(client, nil)
	sat := New(inv, errclass.New(errclass.DefaultConfig()))

	goal := model.NewRootGoal("g1", "find the acquisition timeline")
	result := sat.Saturate(context.Background(), goal, "web_search", rc)

	if result.ExitReason != ExitRateLimited {
		t.Fatalf("expected rate_limited exit, got %s", result.ExitReason)
	}
	if !rc.IsRateLimited("web_search") {
		t.Error("expected web_search marked rate limited")
	}
	if len(result.InsertedRawIDs) != 0 {
		t.Errorf("expected no inserted raws, got %d", len(result.InsertedRawIDs))
	}
}

func TestSaturateExitsOnLLMSaturated(t *testing.T) {
	adapter := &fakeAdapter{
		meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 10},
		responses: []registry.QueryResult{
			{Source: "web_search", Success: true, Total: 1, Results: []registry.ResultItem{
				{Title: "Acme buys Widgets Inc", URL: "https://news.example/1", SnippetOrContent: "Acme announced..."},
			}},
		},
	}
	rc, collector := newTestContext(t, adapter)

	client := &scriptedClient{responses: []string{
		`{"query":"acme acquisition","reasoning":"first pass"}`,
		`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"remaining_gaps":["closing date"]}`,
		`{"decision":"SATURATED","reasoning":"no new ground","confidence":88,"existence_confidence":90,"expected_value":"low"}`,
	}}
	inv := prompt.NewInvoker(client, nil)
	sat := New(inv, errclass.New(errclass.DefaultConfig()))

	goal := model.NewRootGoal("g1", "find the acquisition timeline")
	result := sat.Saturate(context.Background(), goal, "web_search", rc)

	if result.ExitReason != ExitLLMSaturated {
		t.Fatalf("expected llm_saturated exit, got %s", result.ExitReason)
	}
	if len(result.InsertedRawIDs) != 1 {
		t.Fatalf("expected 1 inserted raw, got %d", len(result.InsertedRawIDs))
	}

	foundComplete := false
	for _, e := range collector.Events() {
		if e.EventType == events.TypeSourceSaturationComplete {
			foundComplete = true
		}
	}
	if !foundComplete {
		t.Error("expected a source_saturation_complete event")
	}
}

func TestSaturateExitsOnMaxQueriesReached(t *testing.T) {
	constraints := model.DefaultConstraints()
	constraints.MaxQueriesPerSource = map[string]int{"web_search": 2}

	adapter := &fakeAdapter{
		meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 10},
		responses: []registry.QueryResult{
			{Source: "web_search", Success: true, Total: 1, Results: []registry.ResultItem{
				{Title: "Result A", URL: "https://news.example/a", SnippetOrContent: "..."},
			}},
			{Source: "web_search", Success: true, Total: 1, Results: []registry.ResultItem{
				{Title: "Result B", URL: "https://news.example/b", SnippetOrContent: "..."},
			}},
		},
	}
	reg, err := registry.New([]registry.SourceAdapter{adapter}, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc := runctx.New("q", reg, constraints, events.NullSink{})

	client := &scriptedClient{responses: []string{
		`{"query":"q1","reasoning":"r1"}`,
		`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"ok"}]}`,
		`{"decision":"CONTINUE","reasoning":"more to find","confidence":40,"existence_confidence":50,"next_query":"q2","next_query_reasoning":"r2","expected_value":"medium"}`,
		`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"ok"}]}`,
	}}
	inv := prompt.NewInvoker(client, nil)
	sat := New(inv, errclass.New(errclass.DefaultConfig()))

	goal := model.NewRootGoal("g1", "q")
	result := sat.Saturate(context.Background(), goal, "web_search", rc)

	if result.ExitReason != ExitMaxQueriesReached {
		t.Fatalf("expected max_queries_reached, got %s", result.ExitReason)
	}
	if len(result.QueryHistory) != 2 {
		t.Fatalf("expected 2 query attempts, got %d", len(result.QueryHistory))
	}
}

func TestSaturateDedupesWithinSource(t *testing.T) {
	sameURL := registry.ResultItem{Title: "Same Story", URL: "https://news.example/x?utm_source=rss", SnippetOrContent: "..."}
	adapter := &fakeAdapter{
		meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 10},
		responses: []registry.QueryResult{
			{Source: "web_search", Success: true, Total: 1, Results: []registry.ResultItem{sameURL}},
			{Source: "web_search", Success: true, Total: 1, Results: []registry.ResultItem{sameURL}},
		},
	}
	rc, _ := newTestContext(t, adapter)

	client := &scriptedClient{responses: []string{
		`{"query":"q1","reasoning":"r1"}`,
		`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"ok"}]}`,
		`{"decision":"CONTINUE","reasoning":"try again","confidence":30,"existence_confidence":50,"next_query":"q1","next_query_reasoning":"retry","expected_value":"low"}`,
		`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"ok"}]}`,
		`{"decision":"SATURATED","reasoning":"done","confidence":80,"existence_confidence":80,"expected_value":"low"}`,
	}}
	inv := prompt.NewInvoker(client, nil)
	sat := New(inv, errclass.New(errclass.DefaultConfig()))

	goal := model.NewRootGoal("g1", "q")
	result := sat.Saturate(context.Background(), goal, "web_search", rc)

	if len(result.InsertedRawIDs) != 1 {
		t.Fatalf("expected exactly one inserted raw after intra-source dedup, got %d", len(result.InsertedRawIDs))
	}
}

func intPtr(i int) *int { return &i }
