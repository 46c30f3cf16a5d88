// Package runctx implements GoalContext (glossary): the per-run, shared
// state every component reads and a smaller subset writes. Under the
// parallel-threads model this session uses (§5), the rate-limited-source
// set requires a mutex the same way the evidence index's fingerprint table
// does (§4.2) — both are exercised by concurrent goal execution within a
// dependency group.
package runctx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"researchagent.dev/core/internal/evidence"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/ratelimit"
	"researchagent.dev/core/internal/registry"
)

// Context is GoalContext. It is constructed once per run and shared by
// pointer across every goroutine the Scheduler fans out.
type Context struct {
	OriginalObjective string
	Registry          *registry.Registry
	Constraints       model.Constraints
	StartTime         time.Time
	Index             *evidence.Index
	Sink              events.Sink

	// RunID and Cooldown are set by the caller after New returns when a
	// durable cross-process cooldown set is available; both stay zero for
	// a standalone run, which falls back to the in-memory map below.
	RunID    string
	Cooldown *ratelimit.CooldownSet

	mu                     sync.Mutex
	rateLimitedSources     map[string]bool
	usage                  model.Usage
	processedEvidenceCount int
}

func New(objective string, reg *registry.Registry, constraints model.Constraints, sink events.Sink) *Context {
	if sink == nil {
		sink = events.NullSink{}
	}
	return &Context{
		OriginalObjective:  objective,
		Registry:           reg,
		Constraints:        constraints,
		StartTime:          time.Now(),
		Index:              evidence.NewIndex(),
		Sink:               sink,
		rateLimitedSources: make(map[string]bool),
	}
}

// MarkRateLimited adds sourceID to the blocklist for the rest of the run
// (I5: rate-limit stickiness). Idempotent.
func (c *Context) MarkRateLimited(sourceID string) {
	c.mu.Lock()
	c.rateLimitedSources[sourceID] = true
	c.mu.Unlock()

	if c.Cooldown != nil {
		if err := c.Cooldown.Mark(context.Background(), c.RunID, sourceID); err != nil {
			slog.Warn("runctx: cooldown set mark failed, relying on in-memory state", "source", sourceID, "error", err)
		}
	}
}

// IsRateLimited reports whether sourceID has been blocked this run. The
// in-memory map is authoritative within this process; the cooldown set
// extends the same stickiness rule across other processes sharing the run.
func (c *Context) IsRateLimited(sourceID string) bool {
	c.mu.Lock()
	blocked := c.rateLimitedSources[sourceID]
	c.mu.Unlock()
	if blocked {
		return true
	}

	if c.Cooldown != nil {
		marked, err := c.Cooldown.IsMarked(context.Background(), c.RunID, sourceID)
		if err != nil {
			slog.Warn("runctx: cooldown set check failed, assuming not rate limited", "source", sourceID, "error", err)
			return false
		}
		return marked
	}
	return false
}

// RateLimitedSources returns a snapshot of every currently blocked source.
func (c *Context) RateLimitedSources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rateLimitedSources))
	for id := range c.rateLimitedSources {
		out = append(out, id)
	}
	return out
}

// AddUsage accumulates LLM usage; informational, not a hard budget gate
// unless Constraints configures one.
func (c *Context) AddUsage(u model.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(u)
}

func (c *Context) Usage() model.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// AddProcessedEvidence accumulates how many raws the Evidence Extractor
// projected into ProcessedEvidence (§4.2), surfaced on the final
// ResultBundle as ProcessedEvidenceCount.
func (c *Context) AddProcessedEvidence(n int) {
	c.mu.Lock()
	c.processedEvidenceCount += n
	c.mu.Unlock()
}

func (c *Context) ProcessedEvidenceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processedEvidenceCount
}

// Elapsed is time since run start, used by both the orchestrator's global
// budget check and the saturator's per-source time limit.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// BudgetExhausted reports whether the global time or goal-count budget has
// been exceeded, per the §6 "Budgets" note.
func (c *Context) BudgetExhausted(goalCount int) bool {
	if c.Constraints.MaxTimeSeconds > 0 && int(c.Elapsed().Seconds()) >= c.Constraints.MaxTimeSeconds {
		return true
	}
	if c.Constraints.MaxGoals > 0 && goalCount >= c.Constraints.MaxGoals {
		return true
	}
	return false
}
