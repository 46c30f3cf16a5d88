package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"researchagent.dev/core/internal/model"
)

// RunStore is the hand-written query surface over the run/goal/raw_result
// audit trail. A plain *pgxpool.Pool and a pgx.Tx both satisfy querier, so
// the same struct works standalone or inside DB.WithTx.
type RunStore struct {
	q querier
}

// RunRecord is the persisted projection of one orchestrator run.
type RunRecord struct {
	ID         string
	Question   string
	StopReason string
	StartedAt  time.Time
	FinishedAt *time.Time
}

func (s *RunStore) CreateRun(ctx context.Context, id, question string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO runs (id, question, started_at) VALUES ($1, $2, now())`,
		id, question,
	)
	if err != nil {
		return fmt.Errorf("store: create run %s: %w", id, err)
	}
	return nil
}

func (s *RunStore) FinishRun(ctx context.Context, id string, stopReason model.StopReason) error {
	_, err := s.q.Exec(ctx,
		`UPDATE runs SET stop_reason = $2, finished_at = now() WHERE id = $1`,
		id, string(stopReason),
	)
	if err != nil {
		return fmt.Errorf("store: finish run %s: %w", id, err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var r RunRecord
	var stopReason *string
	err := s.q.QueryRow(ctx,
		`SELECT id, question, stop_reason, started_at, finished_at FROM runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Question, &stopReason, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("store: get run %s: %w", id, err)
	}
	if stopReason != nil {
		r.StopReason = *stopReason
	}
	return r, nil
}

// UpsertGoal persists one Goal's current state, keyed by ID. Re-invoked
// every time a goal transitions (pending -> in_progress -> terminal), so
// this is an upsert, not an insert-once.
func (s *RunStore) UpsertGoal(ctx context.Context, runID string, g *model.Goal) error {
	actionTaken := ""
	if g.ActionTaken != nil {
		actionTaken = string(g.ActionTaken.Type)
	}
	result, err := json.Marshal(g.Result)
	if err != nil {
		return fmt.Errorf("store: marshal goal result %s: %w", g.ID, err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO goals (id, run_id, parent_id, description, rationale, depth, status, priority, action_taken, result, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			action_taken = EXCLUDED.action_taken,
			result = EXCLUDED.result,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`, g.ID, runID, g.ParentID, g.Description, g.Rationale, g.Depth, string(g.Status), g.Priority, actionTaken, result, g.StartedAt, g.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: upsert goal %s: %w", g.ID, err)
	}
	return nil
}

func (s *RunStore) InsertDependency(ctx context.Context, goalID, dependsOnID string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO goal_dependencies (goal_id, depends_on_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		goalID, dependsOnID,
	)
	if err != nil {
		return fmt.Errorf("store: insert dependency %s -> %s: %w", goalID, dependsOnID, err)
	}
	return nil
}

// InsertRawResult persists one fetched item for the audit trail. It is
// deliberately separate from the in-memory evidence.Index: the index is
// the run's working set, this table is what survives the run.
func (s *RunStore) InsertRawResult(ctx context.Context, runID, goalID string, r *model.RawResult) error {
	apiResponse, err := json.Marshal(r.APIResponse)
	if err != nil {
		return fmt.Errorf("store: marshal raw result api_response %s: %w", r.ID, err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO raw_results (id, run_id, goal_id, source_id, title, url, raw_content, api_response, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, runID, goalID, r.SourceID, r.Title, r.URL, r.RawContent, apiResponse, r.FetchedAt)
	if err != nil {
		return fmt.Errorf("store: insert raw result %s: %w", r.ID, err)
	}
	return nil
}

func (s *RunStore) ListGoalsForRun(ctx context.Context, runID string) ([]model.Goal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, parent_id, description, rationale, depth, status, priority, started_at, finished_at
		FROM goals WHERE run_id = $1 ORDER BY depth, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list goals for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		var g model.Goal
		var status string
		if err := rows.Scan(&g.ID, &g.ParentID, &g.Description, &g.Rationale, &g.Depth, &status, &g.Priority, &g.StartedAt, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("store: scan goal row: %w", err)
		}
		g.Status = model.GoalStatus(status)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate goal rows: %w", err)
	}
	return out, nil
}
