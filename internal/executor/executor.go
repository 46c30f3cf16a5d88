// Package executor implements the Action Executor (§4.6): a single
// execute(goal, context) entry point that first runs the Action Selector
// (an LLM call against the "assessment" template) and then dispatches on
// the chosen ActionType. Grounded on the teacher's internal/brain's
// actionExecutor dispatch-table switch (action_executor.go) and its
// ActionError{Recoverable} shape.
package executor

import (
	"context"
	"log/slog"

	"researchagent.dev/core/internal/decomposer"
	"researchagent.dev/core/internal/events"
	"researchagent.dev/core/internal/llmclient"
	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/prompt"
	"researchagent.dev/core/internal/runctx"
	"researchagent.dev/core/internal/saturator"
)

var (
	assessmentSchema = llmclient.GenerateSchema[model.AssessmentResponse]()
	extractionSchema = llmclient.GenerateSchema[model.ExtractionResult]()
)

// Status is the outcome of one Execute call.
type Status string

const (
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is what Execute hands back to whatever drives the goal's lifecycle
// (the orchestrator, or the DAG Scheduler on its behalf).
type Result struct {
	Status       Status
	Action       model.ActionType
	SubGoalSpecs []model.SubGoalSpec // populated only for DECOMPOSE
	Analysis     *model.AnalyzeResult
	Synthesis    *model.SynthesizeResult
	NewRawIDs    []string
	QueryHistory []model.QueryAttempt
	SkipReason   string
	Err          *model.ActionError
}

type Executor struct {
	invoker    *prompt.Invoker
	saturator  *saturator.Saturator
	decomposer *decomposer.Decomposer
}

func New(invoker *prompt.Invoker, sat *saturator.Saturator, dec *decomposer.Decomposer) *Executor {
	return &Executor{invoker: invoker, saturator: sat, decomposer: dec}
}

// Execute is the §4.6 contract. siblingSummaries/previouslyCompleted feed
// both the Action Selector and (for DECOMPOSE) the Goal Decomposer.
func (e *Executor) Execute(ctx context.Context, goal *model.Goal, rc *runctx.Context, siblingSummaries []string, previouslyCompleted []string, remainingGoals, remainingSeconds int) Result {
	assessment, err := e.selectAction(ctx, goal, rc, siblingSummaries, remainingGoals, remainingSeconds, "")
	if err != nil {
		return Result{Status: StatusFailed, Err: &model.ActionError{Action: "assessment", Error: err.Error(), Recoverable: false}}
	}

	if assessment.Action == model.ActionAPICall || assessment.Action == model.ActionWebSearch {
		if rc.IsRateLimited(assessment.SourceID) {
			reassessed, err := e.selectAction(ctx, goal, rc, siblingSummaries, remainingGoals, remainingSeconds, assessment.SourceID)
			if err != nil || reassessed.SourceID == "" || rc.IsRateLimited(reassessed.SourceID) {
				return Result{Status: StatusSkipped, Action: assessment.Action, SkipReason: "source rate-limited and no alternative satisfiable"}
			}
			assessment = reassessed
		}
	}

	goal.ActionTaken = &model.Action{Type: assessment.Action}

	switch assessment.Action {
	case model.ActionDecompose:
		return e.executeDecompose(ctx, goal, rc, siblingSummaries, previouslyCompleted)
	case model.ActionAPICall, model.ActionWebSearch:
		return e.executeSaturate(ctx, goal, rc, assessment.SourceID)
	case model.ActionAnalyze:
		return e.executeAnalyze(ctx, goal, rc, siblingSummaries)
	case model.ActionSynthesize:
		return e.executeSynthesize(ctx, goal, rc)
	default:
		return Result{Status: StatusFailed, Err: &model.ActionError{Action: string(assessment.Action), Error: "unknown action type", Recoverable: false}}
	}
}

func (e *Executor) selectAction(ctx context.Context, goal *model.Goal, rc *runctx.Context, siblingSummaries []string, remainingGoals, remainingSeconds int, maskedSourceID string) (model.AssessmentResponse, error) {
	var resp model.AssessmentResponse
	_, err := e.invoker.Invoke(ctx, "assessment", map[string]any{
		"Goal":             goal,
		"SiblingSummaries": siblingSummaries,
		"RemainingGoals":   remainingGoals,
		"RemainingSeconds": remainingSeconds,
		"AvailableSources": rc.Registry.EnabledSources(),
		"MaskedSourceID":   maskedSourceID,
	}, "assessment", assessmentSchema, prompt.RoleScoping, &resp)
	if err != nil {
		return model.AssessmentResponse{}, err
	}
	rc.Sink.Emit(events.TypeActionSelected, goal.ID, map[string]any{
		"action": resp.Action, "source_id": resp.SourceID,
	})
	return resp, nil
}

func (e *Executor) executeDecompose(ctx context.Context, goal *model.Goal, rc *runctx.Context, siblingSummaries, previouslyCompleted []string) Result {
	specs, err := e.decomposer.Decompose(ctx, goal, rc, siblingSummaries, previouslyCompleted)
	if err != nil {
		return Result{Status: StatusFailed, Action: model.ActionDecompose, Err: &model.ActionError{Action: "decompose", Error: err.Error(), Recoverable: true}}
	}
	return Result{Status: StatusDone, Action: model.ActionDecompose, SubGoalSpecs: specs}
}

func (e *Executor) executeSaturate(ctx context.Context, goal *model.Goal, rc *runctx.Context, sourceID string) Result {
	satResult := e.saturator.Saturate(ctx, goal, sourceID, rc)
	e.projectEvidence(ctx, goal, rc, satResult.InsertedRawIDs)

	switch satResult.ExitReason {
	case saturator.ExitRateLimited, saturator.ExitUnfixableError:
		return Result{
			Status:       StatusSkipped,
			Action:       model.ActionAPICall,
			NewRawIDs:    satResult.InsertedRawIDs,
			QueryHistory: satResult.QueryHistory,
			SkipReason:   string(satResult.ExitReason),
		}
	default:
		return Result{
			Status:       StatusDone,
			Action:       model.ActionAPICall,
			NewRawIDs:    satResult.InsertedRawIDs,
			QueryHistory: satResult.QueryHistory,
		}
	}
}

// projectEvidence runs the Evidence Extractor (§4.2 Project) over every raw
// this goal's ACTION just inserted, turning raw API payloads into
// goal-focused ProcessedEvidence. Extraction failures are logged and
// skipped — they never fail the ACTION itself, since the raw result
// remains usable as-is for ANALYZE/SYNTHESIZE even without a projection.
func (e *Executor) projectEvidence(ctx context.Context, goal *model.Goal, rc *runctx.Context, newRawIDs []string) {
	if len(newRawIDs) == 0 {
		return
	}
	extractor := func(goalID string, raw *model.RawResult) (model.ProcessedEvidence, error) {
		return e.extractEvidence(ctx, goal, raw)
	}
	processed, err := rc.Index.Project(goal.ID, newRawIDs, extractor)
	if err != nil {
		slog.WarnContext(ctx, "evidence extraction: one or more raws failed to project", "goal_id", goal.ID, "error", err)
	}
	rc.AddProcessedEvidence(len(processed))
}

func (e *Executor) extractEvidence(ctx context.Context, goal *model.Goal, raw *model.RawResult) (model.ProcessedEvidence, error) {
	var resp model.ExtractionResult
	_, err := e.invoker.Invoke(ctx, "extraction", map[string]any{
		"Goal": goal,
		"Raw":  raw,
	}, "extraction", extractionSchema, prompt.RoleSummarization, &resp)
	if err != nil {
		return model.ProcessedEvidence{}, err
	}
	return model.ProcessedEvidence{
		RawResultID:        raw.ID,
		GoalID:             goal.ID,
		ExtractedFacts:     resp.ExtractedFacts,
		ExtractedEntities:  resp.ExtractedEntities,
		ExtractedDates:     resp.ExtractedDates,
		RelevanceScore:     resp.RelevanceScore,
		RelevanceReasoning: resp.RelevanceReasoning,
		Summary:            resp.Summary,
		ExtractedByModel:   e.invoker.ModelFor(prompt.RoleSummarization),
	}, nil
}

// evidenceSummaries gathers raws associated with goal plus every one of its
// completed dependency goals (§4.6: "its own associations plus those of
// completed dependency goals"), deduplicated by raw id.
func evidenceSummaries(rc *runctx.Context, goal *model.Goal) []string {
	seen := make(map[string]struct{})
	var summaries []string
	for _, gid := range append([]string{goal.ID}, goal.Dependencies...) {
		for _, raw := range rc.Index.ListForGoal(gid) {
			if _, ok := seen[raw.ID]; ok {
				continue
			}
			seen[raw.ID] = struct{}{}
			summaries = append(summaries, raw.Title+": "+model.TruncateSummary(raw.RawContent))
		}
	}
	return summaries
}

func (e *Executor) executeAnalyze(ctx context.Context, goal *model.Goal, rc *runctx.Context, siblingFindings []string) Result {
	summaries := evidenceSummaries(rc, goal)

	var resp model.AnalyzeResult
	_, err := e.invoker.Invoke(ctx, "analysis", map[string]any{
		"Goal":              goal,
		"EvidenceSummaries": summaries,
		"SiblingFindings":   siblingFindings,
	}, "analysis", analysisSchema, prompt.RoleAnalysis, &resp)
	if err != nil {
		return Result{Status: StatusFailed, Action: model.ActionAnalyze, Err: &model.ActionError{Action: "analyze", Error: err.Error(), Recoverable: true}}
	}
	return Result{Status: StatusDone, Action: model.ActionAnalyze, Analysis: &resp}
}

func (e *Executor) executeSynthesize(ctx context.Context, goal *model.Goal, rc *runctx.Context) Result {
	summaries := evidenceSummaries(rc, goal)

	var resp model.SynthesizeResult
	_, err := e.invoker.Invoke(ctx, "synthesis", map[string]any{
		"Goal":              goal,
		"EvidenceSummaries": summaries,
	}, "synthesis", synthesisSchema, prompt.RoleSynthesis, &resp)
	if err != nil {
		return Result{Status: StatusFailed, Action: model.ActionSynthesize, Err: &model.ActionError{Action: "synthesize", Error: err.Error(), Recoverable: true}}
	}
	return Result{Status: StatusDone, Action: model.ActionSynthesize, Synthesis: &resp}
}

var (
	analysisSchema  = llmclient.GenerateSchema[model.AnalyzeResult]()
	synthesisSchema = llmclient.GenerateSchema[model.SynthesizeResult]()
)
