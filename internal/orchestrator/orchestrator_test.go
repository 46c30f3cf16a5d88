package orchestrator_test

import (
	"context"
	"encoding/json"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"researchagent.dev/core/internal/decomposer"
	"researchagent.dev/core/internal/errclass"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/executor"
	"researchagent.dev/core/internal/id"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/manager"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/orchestrator"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/saturator"
)

// scriptedClient replays one canned JSON response per llmclient.Request
// SchemaName, looping the last entry once a schema's queue is drained.
// Safe for the concurrent calls a dependency group's parallel goals make.
type scriptedClient struct {
	mu      sync.Mutex
	queues  map[string][]string
	cursors map[string]int
}

func newScriptedClient(queues map[string][]string) *scriptedClient {
	return &scriptedClient{queues: queues, cursors: make(map[string]int)}
}

func (c *scriptedClient) Chat(ctx context.Context, req llmclient.Request, result any) (*llmclient.Response, error) {
	c.mu.Lock()
	queue := c.queues[req.SchemaName]
	idx := c.cursors[req.SchemaName]
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	c.cursors[req.SchemaName] = idx + 1
	c.mu.Unlock()

	if idx < 0 || idx >= len(queue) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(queue[idx]), result); err != nil {
		return nil, err
	}
	return &llmclient.Response{}, nil
}

func (c *scriptedClient) Model() string { return "scripted" }

type fakeAdapter struct {
	meta model.SourceCapability
}

func (a fakeAdapter) Metadata() model.SourceCapability { return a.meta }
func (a fakeAdapter) IsRelevant(ctx context.Context, q string) bool { return true }
func (a fakeAdapter) GenerateQuery(ctx context.Context, q string, hints map[string]any) (map[string]any, error) {
	return map[string]any{"q": q}, nil
}
func (a fakeAdapter) ExecuteSearch(ctx context.Context, params map[string]any, apiKey string, limit int) registry.QueryResult {
	return registry.QueryResult{
		Source:  a.meta.ID,
		Success: true,
		Total:   1,
		Results: []registry.ResultItem{{Title: "a result", URL: "https://example.com/a", SnippetOrContent: "content"}},
	}
}

func newWiredOrchestrator(client llmclient.Client) *orchestrator.Orchestrator {
	inv := prompt.NewInvoker(client, nil)
	classifier := errclass.New(errclass.DefaultConfig())
	dec := decomposer.New(inv)
	mgr := manager.New(inv)
	sat := saturator.New(inv, classifier)
	exec := executor.New(inv, sat, dec)
	return orchestrator.New(exec, dec, mgr)
}

var _ = BeforeEach(func() {
	_ = id.Init(1)
})

var _ = Describe("Orchestrator", func() {

	Describe("S1 — dependency-respecting decomposition", func() {
		It("runs independent sub-goals before the goal that depends on both", func() {
			reg, err := registry.New([]registry.SourceAdapter{
				fakeAdapter{meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 5}},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			client := newScriptedClient(map[string][]string{
				"assessment": {
					`{"action":"DECOMPOSE","reasoning":"needs breakdown"}`,
					`{"action":"WEB_SEARCH","reasoning":"fetch lockheed","source_id":"web_search"}`,
					`{"action":"WEB_SEARCH","reasoning":"fetch northrop","source_id":"web_search"}`,
					`{"action":"ANALYZE","reasoning":"compare the two"}`,
				},
				"decomposition": {
					`{"sub_goals":[
						{"description":"Retrieve Lockheed 2024 contracts","rationale":"r","estimated_complexity":"simple","dependencies":[]},
						{"description":"Retrieve Northrop 2024 contracts","rationale":"r","estimated_complexity":"simple","dependencies":[]},
						{"description":"Compare the two","rationale":"r","estimated_complexity":"moderate","dependencies":[0,1]}
					]}`,
				},
				"initial_query": {
					`{"query":"Lockheed Martin 2024 federal contracts","reasoning":"start broad"}`,
					`{"query":"Northrop Grumman 2024 federal contracts","reasoning":"start broad"}`,
				},
				"source_saturation_decision": {
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
				},
				"result_filtering": {
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":["found a contract"]}`,
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":["found a contract"]}`,
				},
				"analysis": {
					`{"findings":["lockheed and northrop both grew"],"claims":[],"gaps":[]}`,
				},
				"task_prioritization": {
					`{"assignments":[],"global_coverage_assessment":"early"}`,
				},
				"saturation_detection": {
					`{"saturated":false,"confidence":10,"rationale":"just started","recommendation":"continue_full"}`,
				},
			})

			orch := newWiredOrchestrator(client)
			bundle := orch.Run(context.Background(), "Compare Lockheed Martin vs Northrop Grumman federal contracts in 2024", reg, model.DefaultConstraints(), events.NullSink{})

			Expect(bundle.Goals).To(HaveLen(4)) // root + 3 sub-goals

			var lockheed, northrop, compare *model.Goal
			for _, g := range bundle.Goals {
				switch g.Description {
				case "Retrieve Lockheed 2024 contracts":
					lockheed = g
				case "Retrieve Northrop 2024 contracts":
					northrop = g
				case "Compare the two":
					compare = g
				}
			}
			Expect(lockheed).NotTo(BeNil())
			Expect(northrop).NotTo(BeNil())
			Expect(compare).NotTo(BeNil())

			Expect(compare.Dependencies).To(ConsistOf(lockheed.ID, northrop.ID))
			Expect(lockheed.Status).To(Equal(model.GoalStatusDone))
			Expect(northrop.Status).To(Equal(model.GoalStatusDone))
			Expect(compare.Status).To(Equal(model.GoalStatusDone))

			Expect(lockheed.FinishedAt).NotTo(BeNil())
			Expect(compare.StartedAt).NotTo(BeNil())
			Expect(compare.StartedAt.Before(*lockheed.FinishedAt)).To(BeFalse(),
				"the dependent goal must not start before its predecessor finishes")
		})
	})

	Describe("S3 — rate-limit stickiness", func() {
		It("masks a rate-limited source and still reaches a terminal stop reason", func() {
			reg, err := registry.New([]registry.SourceAdapter{
				rateLimitedAdapter{id: "source_a"},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			client := newScriptedClient(map[string][]string{
				"assessment": {
					`{"action":"WEB_SEARCH","reasoning":"try source a","source_id":"source_a"}`,
				},
				"initial_query": {
					`{"query":"DoD AI contracts 2024","reasoning":"start"}`,
				},
			})

			orch := newWiredOrchestrator(client)
			bundle := orch.Run(context.Background(), "DoD AI contracts 2024", reg, model.DefaultConstraints(), events.NullSink{})

			Expect(bundle.Goals).To(HaveLen(1))
			Expect(bundle.Goals[0].Status).To(Equal(model.GoalStatusSkipped))
			Expect(bundle.StopReason).To(BeElementOf(model.StopAllGoalsDone, model.StopSaturated, model.StopBudgetExhausted))
		})
	})

	Describe("S5 — budget exhaustion is graceful", func() {
		It("returns a non-empty bundle with stop_reason=budget_exhausted instead of propagating an error", func() {
			reg, err := registry.New([]registry.SourceAdapter{
				fakeAdapter{meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 5}},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			specs := make([]map[string]any, 0, 10)
			for i := 0; i < 10; i++ {
				specs = append(specs, map[string]any{
					"description":           "sub-goal",
					"rationale":              "r",
					"estimated_complexity":   "simple",
					"dependencies":           []int{},
				})
			}
			decompositionResp, err := json.Marshal(map[string]any{"sub_goals": specs})
			Expect(err).NotTo(HaveOccurred())

			client := newScriptedClient(map[string][]string{
				"assessment": {
					`{"action":"DECOMPOSE","reasoning":"split into many"}`,
					`{"action":"WEB_SEARCH","reasoning":"go","source_id":"web_search"}`,
				},
				"decomposition": {string(decompositionResp)},
				"initial_query": {`{"query":"q","reasoning":"r"}`},
				"source_saturation_decision": {
					`{"decision":"SATURATED","reasoning":"done","confidence":80,"existence_confidence":80,"expected_value":"low"}`,
				},
				"result_filtering": {
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.8,"reasoning":"ok"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":[]}`,
				},
				"task_prioritization": {`{"assignments":[],"global_coverage_assessment":"partial"}`},
				"saturation_detection": {`{"saturated":false,"confidence":10,"rationale":"too early","recommendation":"continue_full"}`},
			})

			constraints := model.DefaultConstraints()
			constraints.MaxGoals = 3 // the 10-way decomposition blows straight past this

			orch := newWiredOrchestrator(client)
			bundle := orch.Run(context.Background(), "wide question", reg, constraints, events.NullSink{})

			Expect(bundle.StopReason).To(Equal(model.StopBudgetExhausted))
			Expect(bundle.Goals).NotTo(BeEmpty())
			hasDone := false
			for _, g := range bundle.Goals {
				if g.Status == model.GoalStatusDone {
					hasDone = true
				}
			}
			Expect(hasDone).To(BeTrue(), "expected the root's decomposition to complete before the budget check stopped the run")
		})
	})

	Describe("S6 — saturation detector halts early", func() {
		It("clears the not-yet-started pending queue and lets in-flight goals finish", func() {
			reg, err := registry.New([]registry.SourceAdapter{
				fakeAdapter{meta: model.SourceCapability{ID: "web_search", TypicalResultCount: 5}},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			specs := make([]map[string]any, 0, 5)
			for i := 0; i < 5; i++ {
				specs = append(specs, map[string]any{
					"description":         "independent sub-query",
					"rationale":            "r",
					"estimated_complexity": "simple",
					"dependencies":         []int{},
				})
			}
			decompositionResp, err := json.Marshal(map[string]any{"sub_goals": specs})
			Expect(err).NotTo(HaveOccurred())

			client := newScriptedClient(map[string][]string{
				"assessment": {
					`{"action":"DECOMPOSE","reasoning":"split into independent searches"}`,
					`{"action":"WEB_SEARCH","reasoning":"go","source_id":"web_search"}`,
					`{"action":"WEB_SEARCH","reasoning":"go","source_id":"web_search"}`,
					`{"action":"WEB_SEARCH","reasoning":"go","source_id":"web_search"}`,
					`{"action":"WEB_SEARCH","reasoning":"go","source_id":"web_search"}`,
				},
				"decomposition": {string(decompositionResp)},
				"initial_query": {
					`{"query":"q1","reasoning":"r"}`,
					`{"query":"q2","reasoning":"r"}`,
					`{"query":"q3","reasoning":"r"}`,
					`{"query":"q4","reasoning":"r"}`,
				},
				"source_saturation_decision": {
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
					`{"decision":"SATURATED","reasoning":"enough","confidence":90,"existence_confidence":90,"expected_value":"low"}`,
				},
				"result_filtering": {
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":[]}`,
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":[]}`,
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":[]}`,
					`{"decisions":[{"index":0,"accept":true,"relevance_score":0.9,"reasoning":"on topic"}],"rejection_themes":[],"remaining_gaps":[],"key_insights":[]}`,
				},
				"task_prioritization": {`{"assignments":[],"global_coverage_assessment":"five independent branches"}`},
				"saturation_detection": {
					`{"saturated":true,"confidence":90,"rationale":"1.0, 0.9, 0.1 new-result ratios across the last three goals","recommendation":"stop"}`,
				},
			})

			constraints := model.DefaultConstraints()
			constraints.MaxConcurrentTasks = 4 // batch dispatches 4 of the 5 siblings, leaving one pending

			orch := newWiredOrchestrator(client)
			bundle := orch.Run(context.Background(), "five independent sub-questions", reg, constraints, events.NullSink{})

			Expect(bundle.StopReason).To(Equal(model.StopSaturated))
			Expect(bundle.Goals).To(HaveLen(6)) // root + 5 sub-goals

			var root *model.Goal
			var dispatched, untouched []*model.Goal
			for _, g := range bundle.Goals {
				switch {
				case g.Depth == 0:
					root = g
				case g.Status == model.GoalStatusPending:
					untouched = append(untouched, g)
				default:
					dispatched = append(dispatched, g)
				}
			}
			Expect(root).NotTo(BeNil())
			Expect(root.Status).To(Equal(model.GoalStatusDone))

			Expect(dispatched).To(HaveLen(4), "the dispatched batch must finish even though saturation fired right after it")
			for _, g := range dispatched {
				Expect(g.Status).To(Equal(model.GoalStatusDone))
				Expect(g.StartedAt).NotTo(BeNil())
			}

			Expect(untouched).To(HaveLen(1), "the sibling never dispatched must be left pending, not executed")
			Expect(untouched[0].StartedAt).To(BeNil())
		})
	})
})

type rateLimitedAdapter struct{ id string }

func (a rateLimitedAdapter) Metadata() model.SourceCapability {
	return model.SourceCapability{ID: a.id, TypicalResultCount: 5}
}
func (a rateLimitedAdapter) IsRelevant(ctx context.Context, q string) bool { return true }
func (a rateLimitedAdapter) GenerateQuery(ctx context.Context, q string, hints map[string]any) (map[string]any, error) {
	return map[string]any{"q": q}, nil
}
func (a rateLimitedAdapter) ExecuteSearch(ctx context.Context, params map[string]any, apiKey string, limit int) registry.QueryResult {
	code := 429
	return registry.QueryResult{Source: a.id, Success: false, Error: "rate limited", HTTPCode: &code}
}
