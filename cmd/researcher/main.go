// Command researcher is the thin composition root: it loads config, wires
// logging/telemetry, the Source Registry's adapters, the LLM client, and
// every component in the dependency chain down to the Recursive Agent
// Orchestrator, then runs one research question end to end. Grounded on
// the teacher's cmd/explore/main.go (env-driven wiring, optional-with-
// graceful-disable ArangoDB connection, stderr progress lines).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"researchagent.dev/core/internal/config"
	"researchagent.dev/core/internal/decomposer"
	"researchagent.dev/core/internal/errclass"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/executor"
	"researchagent.dev/core/internal/graph"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/logging"
	"researchagent.dev/core/internal/manager"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/orchestrator"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/ratelimit"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/registry/adapter/typesense"
	"researchagent.dev/core/internal/registry/adapter/websearch"
	"researchagent.dev/core/internal/saturator"
	"researchagent.dev/core/internal/store"
	"researchagent.dev/core/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logging.Setup(cfg)

	question := os.Getenv("RESEARCH_QUESTION")
	if question == "" {
		fmt.Fprintln(os.Stderr, "RESEARCH_QUESTION is required")
		os.Exit(1)
	}

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: disabled (%v)\n", err)
	}
	defer func() {
		if tel != nil {
			_ = tel.Shutdown(ctx)
		}
	}()

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "llm client: %v\n", err)
		os.Exit(1)
	}

	reg := buildRegistry(cfg)

	// Durable stores are best-effort: a run proceeds in memory-only mode
	// if Postgres/ArangoDB/Redis aren't reachable, since §1's Non-goals
	// exclude checkpointed resumption — nothing downstream depends on them.
	db := connectStore(ctx, cfg)
	if db != nil {
		defer db.Close()
	}
	graphClient := connectGraph(ctx, cfg)
	if graphClient != nil {
		defer graphClient.Close()
	}
	redisClient := connectRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}
	var cooldown *ratelimit.CooldownSet
	if redisClient != nil {
		cooldown = ratelimit.NewCooldownSet(redisClient, time.Duration(cfg.Constraints.RateLimitCooldownSeconds)*time.Second)
		fmt.Fprintln(os.Stderr, "rate-limit cooldown set: cross-process stickiness enabled")
	}

	eventFile, sink := buildEventSink()
	if eventFile != nil {
		defer eventFile.Close()
	}

	invoker := prompt.NewInvoker(llmClient, nil)
	classifierCfg := errclass.DefaultConfig()
	classifierCfg.TimeoutPatterns = cfg.ErrorHandling.TimeoutPatterns
	classifierCfg.RateLimitPatterns = cfg.ErrorHandling.RateLimitPatterns
	classifier := errclass.New(classifierCfg)
	dec := decomposer.New(invoker)
	mgr := manager.New(invoker)
	// 2 req/s is a conservative default pace ahead of any source's own
	// rate limit; adapters that need a tighter or looser bucket can be
	// keyed individually once source-specific throughput data exists.
	sat := saturator.New(invoker, classifier).WithLimiters(ratelimit.NewLimiters(nil, 2))
	exec := executor.New(invoker, sat, dec)
	orch := orchestrator.New(exec, dec, mgr)

	runID := fmt.Sprintf("run_%d", time.Now().UnixNano())
	if cooldown != nil {
		orch.WithCooldown(runID, cooldown)
	}
	if db != nil {
		if err := db.Runs().CreateRun(ctx, runID, question); err != nil {
			fmt.Fprintf(os.Stderr, "store: create run: %v\n", err)
		}
	}

	bundle := orch.Run(ctx, question, reg, cfg.Constraints, sink)

	if db != nil {
		persistBundle(ctx, db, graphClient, runID, bundle)
		if err := db.Runs().FinishRun(ctx, runID, bundle.StopReason); err != nil {
			fmt.Fprintf(os.Stderr, "store: finish run: %v\n", err)
		}
	}

	out, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal result bundle: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// persistBundle writes every goal and its dependency edges to the audit
// store, and mirrors the same writes into the goal graph when one is
// connected. Raw results are not written here, and nothing else in this
// command calls RunStore.InsertRawResult, so the raw_results table stays
// empty for these runs.
func persistBundle(ctx context.Context, db *store.DB, g graph.Client, runID string, bundle model.ResultBundle) {
	runs := db.Runs()
	for _, goal := range bundle.Goals {
		if err := runs.UpsertGoal(ctx, runID, goal); err != nil {
			fmt.Fprintf(os.Stderr, "store: %v\n", err)
		}
		if g != nil {
			if err := g.UpsertGoal(ctx, goal); err != nil {
				fmt.Fprintf(os.Stderr, "goal graph: %v\n", err)
			}
		}
		for _, depID := range goal.Dependencies {
			if err := runs.InsertDependency(ctx, goal.ID, depID); err != nil {
				fmt.Fprintf(os.Stderr, "store: %v\n", err)
			}
			if g != nil {
				if err := g.LinkDependency(ctx, goal.ID, depID); err != nil {
					fmt.Fprintf(os.Stderr, "goal graph: %v\n", err)
				}
			}
		}
	}
}

func buildLLMClient(cfg config.Config) (llmclient.Client, error) {
	provider := os.Getenv("LLM_PROVIDER")
	model := cfg.ModelRoles["research"]
	switch provider {
	case "anthropic":
		return llmclient.NewAnthropic(llmclient.Config{APIKey: cfg.AnthropicAPIKey, Model: model})
	default:
		return llmclient.NewOpenAI(llmclient.Config{APIKey: cfg.OpenAIAPIKey, Model: model})
	}
}

func buildRegistry(cfg config.Config) *registry.Registry {
	var adapters []registry.SourceAdapter

	if ws := os.Getenv("WEBSEARCH_ENDPOINT"); ws != "" {
		adapters = append(adapters, websearch.New(ws, nil))
	}
	if ts := os.Getenv("TYPESENSE_URL"); ts != "" {
		adapters = append(adapters, typesense.New(
			ts,
			os.Getenv("TYPESENSE_API_KEY"),
			getEnv("TYPESENSE_COLLECTION", "research_corpus"),
			getEnv("TYPESENSE_QUERY_BY", "title,content"),
		))
	}

	reg, err := registry.New(adapters, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "registry: %v\n", err)
		os.Exit(1)
	}
	return reg
}

func connectStore(ctx context.Context, cfg config.Config) *store.DB {
	db, err := store.New(ctx, store.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns, MinConns: cfg.DB.MinConns})
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit store: disabled (%v)\n", err)
		return nil
	}
	return db
}

func connectGraph(ctx context.Context, cfg config.Config) graph.Client {
	g, err := graph.New(ctx, graph.Config{
		URL:      cfg.Arango.URL,
		Username: cfg.Arango.Username,
		Password: cfg.Arango.Password,
		Database: cfg.Arango.Database,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "goal graph: disabled (%v)\n", err)
		return nil
	}
	if err := g.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "goal graph: disabled (%v)\n", err)
		return nil
	}
	return g
}

func connectRedis(cfg config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "rate-limit cooldown set: disabled (%v)\n", err)
		return nil
	}
	return client
}

func buildEventSink() (*os.File, events.Sink) {
	path := os.Getenv("EVENT_LOG_PATH")
	if path == "" {
		return nil, events.NullSink{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "event log: disabled (%v)\n", err)
		return nil, events.NullSink{}
	}
	return f, events.NewJSONLWriter(f)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
