// Package saturator implements the Source Saturator (§4.5), the heart of
// per-source intelligence: an iterative generate-query / execute /
// filter-accept / decide-continue loop against a single (goal, source)
// pair. Grounded on the teacher's internal/brain/explore_agent.go (soft/hard
// iteration ceilings, history-aware loop, structured session metrics
// emitted at the end) and retriever.go (the retrieval-then-filter shape),
// generalized from "explore a codebase" to "saturate a data source".
package saturator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"researchagent.dev/core/internal/errclass"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/evidence"
	"researchagent.dev/core/internal/id"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/ratelimit"
	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/runctx"
)

var (
	initialQuerySchema     = llmclient.GenerateSchema[initialQueryResponse]()
	saturationDecisionSchema = llmclient.GenerateSchema[model.SaturationDecision]()
	resultFilteringSchema  = llmclient.GenerateSchema[filterResponse]()
)

const maxHistoryInPrompt = 5

// Saturator runs the per-(goal,source) loop described in §4.5.
type Saturator struct {
	invoker    *prompt.Invoker
	classifier *errclass.Classifier
	limiters   *ratelimit.Limiters
}

func New(invoker *prompt.Invoker, classifier *errclass.Classifier) *Saturator {
	if classifier == nil {
		classifier = errclass.New(errclass.DefaultConfig())
	}
	return &Saturator{invoker: invoker, classifier: classifier}
}

// WithLimiters paces outbound adapter calls at a per-source queries-per-
// second rate ahead of the source's own rate-limit response, so a fleet of
// concurrent goals sharing one source doesn't trip ExitRateLimited as often.
func (s *Saturator) WithLimiters(limiters *ratelimit.Limiters) *Saturator {
	s.limiters = limiters
	return s
}

// Saturate is the public contract: saturate(goal, source, context) ->
// (raw ids inserted, query attempts).
func (s *Saturator) Saturate(ctx context.Context, goal *model.Goal, sourceID string, rc *runctx.Context) Result {
	adapter, ok := rc.Registry.Get(sourceID)
	if !ok {
		return Result{ExitReason: ExitUnfixableError}
	}
	capability := adapter.Metadata()
	apiKey := "" // credential sourcing is out of scope; adapters resolve their own

	maxQueries := rc.Constraints.MaxQueriesFor(sourceID)
	maxReformulations := rc.Constraints.MaxReformulationAttempts
	maxTime := time.Duration(rc.Constraints.MaxTimePerSourceSeconds) * time.Second

	started := time.Now()
	var history []model.QueryAttempt
	seenURLs := make(map[string]bool)
	insertedRawIDs := make([]string, 0)
	currentUnderstanding := goal.Description
	gaps := initialGaps(goal)

	rc.Sink.Emit(events.TypeSourceSaturationStart, goal.ID, map[string]any{
		"source_id": sourceID,
	})

	for {
		query, reasoning, decision, exitReason := s.generateQuery(ctx, goal, capability, history, gaps, rc)
		if exitReason != "" {
			return s.finish(rc, goal, sourceID, history, insertedRawIDs, exitReason, decisionConfidence(decision))
		}

		query = strings.TrimSpace(query)
		if query == "" {
			return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitEmptyQuerySuggestion, 0)
		}

		if s.limiters != nil {
			if err := s.limiters.Wait(ctx, sourceID); err != nil {
				return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitUnfixableError, 0)
			}
		}
		queryResult := adapter.ExecuteSearch(ctx, map[string]any{"q": query}, apiKey, capability.TypicalResultCount)

		if !queryResult.Success {
			apiErr := s.classifier.Classify(queryResult.Error, queryResult.HTTPCode, sourceID)
			attempt := model.QueryAttempt{
				QueryNum:  len(history) + 1,
				Query:     query,
				Reasoning: reasoning,
				Error:     &apiErr,
			}

			switch {
			case apiErr.Category == model.ErrorRateLimit:
				rc.MarkRateLimited(sourceID)
				history = append(history, attempt)
				rc.Sink.Emit(events.TypeQueryAttempt, goal.ID, queryAttemptEventData(attempt, sourceID))
				return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitRateLimited, 0)

			case apiErr.Category == model.ErrorAuthentication || apiErr.Category == model.ErrorNotFound:
				history = append(history, attempt)
				rc.Sink.Emit(events.TypeQueryAttempt, goal.ID, queryAttemptEventData(attempt, sourceID))
				return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitUnfixableError, 0)

			case apiErr.IsReformulable && len(history) < maxReformulations:
				history = append(history, attempt)
				rc.Sink.Emit(events.TypeQueryAttempt, goal.ID, queryAttemptEventData(attempt, sourceID))
				continue

			default:
				history = append(history, attempt)
				rc.Sink.Emit(events.TypeQueryAttempt, goal.ID, queryAttemptEventData(attempt, sourceID))
				return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitUnfixableError, 0)
			}
		}

		filtered, rejectionThemes, remainingGaps, insights, err := s.filterResults(ctx, goal, rc.OriginalObjective, queryResult.Results)
		if err != nil {
			filtered = acceptAll(queryResult.Results)
		}

		resultsNew, resultsDuplicate := 0, 0
		for _, item := range filtered {
			canon := canonicalize(item)
			if seenURLs[canon] {
				resultsDuplicate++
				continue
			}
			seenURLs[canon] = true

			raw := &model.RawResult{
				ID:             id.NewPrefixed("raw"),
				SourceID:       sourceID,
				QueryParams:    map[string]any{"q": query},
				FetchedAt:      time.Now(),
				Title:          item.Title,
				URL:            item.URL,
				RawContent:     item.SnippetOrContent,
				APIResponse:    item.Metadata,
			}

			rawID, inserted := rc.Index.InsertRaw(raw)
			rc.Index.Associate(goal.ID, rawID)
			if inserted {
				resultsNew++
				insertedRawIDs = append(insertedRawIDs, rawID)
				rc.Sink.Emit(events.TypeEvidenceInserted, goal.ID, map[string]any{
					"raw_id": rawID, "source_id": sourceID,
				})
			} else {
				resultsDuplicate++
			}
		}

		effectiveness := 0.0
		if queryResult.Total > 0 {
			effectiveness = float64(resultsNew) / float64(queryResult.Total)
		}

		attempt := model.QueryAttempt{
			QueryNum:         len(history) + 1,
			Query:            query,
			Reasoning:        reasoning,
			ResultsTotal:     queryResult.Total,
			ResultsAccepted:  resultsNew + resultsDuplicate,
			ResultsRejected:  len(queryResult.Results) - (resultsNew + resultsDuplicate),
			ResultsDuplicate: resultsDuplicate,
			RejectionThemes:  rejectionThemes,
			Effectiveness:    effectiveness,
		}
		history = append(history, attempt)
		rc.Sink.Emit(events.TypeQueryAttempt, goal.ID, queryAttemptEventData(attempt, sourceID))

		currentUnderstanding = extendUnderstanding(currentUnderstanding, insights)
		if remainingGaps != nil {
			gaps = remainingGaps
		}

		if len(history) >= maxQueries {
			return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitMaxQueriesReached, 0)
		}
		if maxTime > 0 && time.Since(started) > maxTime {
			return s.finish(rc, goal, sourceID, history, insertedRawIDs, ExitTimeLimitReached, 0)
		}
	}
}

func (s *Saturator) finish(rc *runctx.Context, goal *model.Goal, sourceID string, history []model.QueryAttempt, inserted []string, reason ExitReason, confidence int) Result {
	rc.Sink.Emit(events.TypeSourceSaturationComplete, goal.ID, map[string]any{
		"source_id":       sourceID,
		"exit_reason":      string(reason),
		"queries_executed": len(history),
		"results_accepted": len(inserted),
	})
	return Result{
		InsertedRawIDs: inserted,
		QueryHistory:   history,
		ExitReason:     reason,
		Confidence:     confidence,
	}
}

// generateQuery implements step 1 of the loop: the first iteration asks for
// an initial query, every subsequent iteration asks the saturation-decision
// prompt which may itself terminate the loop.
func (s *Saturator) generateQuery(ctx context.Context, goal *model.Goal, capability model.SourceCapability, history []model.QueryAttempt, gaps []string, rc *runctx.Context) (query, reasoning string, decision *model.SaturationDecision, exitReason ExitReason) {
	if len(history) == 0 {
		var resp initialQueryResponse
		_, err := s.invoker.Invoke(ctx, "initial_query", map[string]any{
			"Goal":   goal,
			"Source": capability,
			"Gaps":   gaps,
		}, "initial_query", initialQuerySchema, prompt.RoleResearch, &resp)
		if err != nil {
			return "", "", nil, ExitQueryGenerationError
		}
		return resp.Query, resp.Reasoning, nil, ""
	}

	var dec model.SaturationDecision
	_, err := s.invoker.Invoke(ctx, "source_saturation", map[string]any{
		"Goal":              goal,
		"Source":            capability,
		"SummarizedHistory": summarizeHistory(history),
		"AcceptedCount":     acceptedCount(history),
		"Gaps":              gaps,
	}, "source_saturation_decision", saturationDecisionSchema, prompt.RoleResearch, &dec)
	if err != nil {
		return "", "", nil, ExitQueryGenerationError
	}
	if dec.Decision == model.SaturationSaturated {
		return "", "", &dec, ExitLLMSaturated
	}
	return dec.NextQuery, dec.NextQueryReasoning, &dec, ""
}

func (s *Saturator) filterResults(ctx context.Context, goal *model.Goal, originalObjective string, results []registry.ResultItem) ([]registry.ResultItem, []string, []string, []string, error) {
	if len(results) == 0 {
		return nil, nil, nil, nil, nil
	}

	var resp filterResponse
	_, err := s.invoker.Invoke(ctx, "result_filtering", map[string]any{
		"OriginalObjective": originalObjective,
		"Goal":              goal,
		"Results":           results,
	}, "result_filtering", resultFilteringSchema, prompt.RoleResearch, &resp)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	accepted := make([]registry.ResultItem, 0, len(results))
	for _, d := range resp.Decisions {
		if !d.Accept {
			continue
		}
		if d.Index < 0 || d.Index >= len(results) {
			continue
		}
		accepted = append(accepted, results[d.Index])
	}
	return accepted, resp.RejectionThemes, resp.RemainingGaps, resp.KeyInsights, nil
}

func acceptAll(results []registry.ResultItem) []registry.ResultItem {
	return results
}

func canonicalize(item registry.ResultItem) string {
	if canon := evidence.CanonicalizeURL(item.URL); canon != "" {
		return canon
	}
	return item.Title + "|" + item.SnippetOrContent
}

func initialGaps(goal *model.Goal) []string {
	if goal.Rationale == "" {
		return nil
	}
	return []string{goal.Rationale}
}

func summarizeHistory(history []model.QueryAttempt) []historyEntry {
	start := 0
	if len(history) > maxHistoryInPrompt {
		start = len(history) - maxHistoryInPrompt
	}
	out := make([]historyEntry, 0, len(history)-start)
	for _, a := range history[start:] {
		out = append(out, historyEntry{
			Query:           a.Query,
			ResultsTotal:    a.ResultsTotal,
			ResultsAccepted: a.ResultsAccepted,
			Effectiveness:   a.Effectiveness,
			RejectionThemes: a.RejectionThemes,
		})
	}
	return out
}

func acceptedCount(history []model.QueryAttempt) int {
	total := 0
	for _, a := range history {
		total += a.ResultsAccepted
	}
	return total
}

func extendUnderstanding(current string, insights []string) string {
	if len(insights) == 0 {
		return current
	}
	return current + " " + strings.Join(insights, " ")
}

func decisionConfidence(d *model.SaturationDecision) int {
	if d == nil {
		return 0
	}
	return d.Confidence
}

func queryAttemptEventData(a model.QueryAttempt, sourceID string) map[string]any {
	data := map[string]any{
		"source_id":         sourceID,
		"query_num":         a.QueryNum,
		"query":              a.Query,
		"results_total":      a.ResultsTotal,
		"results_accepted":   a.ResultsAccepted,
		"results_duplicate":  a.ResultsDuplicate,
		"effectiveness":      a.Effectiveness,
	}
	if a.Error != nil {
		data["error"] = fmt.Sprintf("%s: %s", a.Error.Category, a.Error.Message)
	}
	return data
}
