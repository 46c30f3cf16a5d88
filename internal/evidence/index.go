// Package evidence implements the GlobalEvidenceIndex: the de-duplicated,
// append-only store of RawResults and their per-goal associations.
//
// The DAG Scheduler fans goals out across goroutines within a dependency
// group (§5), so this is the "parallel-threads model" spec.md calls out:
// the fingerprint table and the goal/raw association maps are guarded by a
// single mutex, giving insert-if-absent atomicity across concurrent
// goal execution rather than relying on single-threaded ordering.
package evidence

import (
	"sort"
	"sync"

	"researchagent.dev/core/internal/model"
)

// Extractor projects a raw result into goal-focused ProcessedEvidence,
// typically by invoking an LLM-backed summarization/extraction template.
// This is the seam the Prompt Invoker fills in at runtime (§4.2 Project).
type Extractor func(goalID string, raw *model.RawResult) (model.ProcessedEvidence, error)

// Index is the GlobalEvidenceIndex.
type Index struct {
	mu sync.Mutex

	raws         []*model.RawResult
	byID         map[string]*model.RawResult
	fingerprints map[string]string   // fingerprint -> raw id
	goalToRaws   map[string]map[string]struct{}
	rawToGoals   map[string]map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		byID:         make(map[string]*model.RawResult),
		fingerprints: make(map[string]string),
		goalToRaws:   make(map[string]map[string]struct{}),
		rawToGoals:   make(map[string]map[string]struct{}),
	}
}

// InsertRaw inserts a raw result if its fingerprint is new, returning the
// (possibly pre-existing) raw id and whether this call performed the
// insertion (law L1: repeat inserts of the same fingerprint are no-ops).
func (idx *Index) InsertRaw(raw *model.RawResult) (string, bool) {
	fp := Fingerprint(raw.SourceID, raw.Title, raw.URL, raw.RawContent)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.fingerprints[fp]; ok {
		return existing, false
	}

	idx.fingerprints[fp] = raw.ID
	idx.byID[raw.ID] = raw
	idx.raws = append(idx.raws, raw)
	return raw.ID, true
}

// Associate idempotently records that goalID contributed/uses rawID (law
// L2).
func (idx *Index) Associate(goalID, rawID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.goalToRaws[goalID] == nil {
		idx.goalToRaws[goalID] = make(map[string]struct{})
	}
	idx.goalToRaws[goalID][rawID] = struct{}{}

	if idx.rawToGoals[rawID] == nil {
		idx.rawToGoals[rawID] = make(map[string]struct{})
	}
	idx.rawToGoals[rawID][goalID] = struct{}{}
}

// ListForGoal returns the ordered (by insertion) raws associated with a
// goal.
func (idx *Index) ListForGoal(goalID string) []*model.RawResult {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := idx.goalToRaws[goalID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]*model.RawResult, 0, len(ids))
	for _, raw := range idx.raws {
		if _, ok := ids[raw.ID]; ok {
			out = append(out, raw)
		}
	}
	return out
}

// ListNewSince returns the raws associated with goalID that are not in
// priorRawIDs, used to compute "what did this query add?".
func (idx *Index) ListNewSince(goalID string, priorRawIDs map[string]struct{}) []*model.RawResult {
	all := idx.ListForGoal(goalID)
	out := make([]*model.RawResult, 0, len(all))
	for _, raw := range all {
		if _, seen := priorRawIDs[raw.ID]; !seen {
			out = append(out, raw)
		}
	}
	return out
}

// Project applies extractor to every raw id for goalID, producing goal-
// focused ProcessedEvidence. A failed extraction does not abort the batch:
// the raw is skipped, and the first such error is returned alongside the
// projections that succeeded.
func (idx *Index) Project(goalID string, rawIDs []string, extractor Extractor) ([]model.ProcessedEvidence, error) {
	idx.mu.Lock()
	raws := make([]*model.RawResult, 0, len(rawIDs))
	for _, id := range rawIDs {
		if raw, ok := idx.byID[id]; ok {
			raws = append(raws, raw)
		}
	}
	idx.mu.Unlock()

	out := make([]model.ProcessedEvidence, 0, len(raws))
	var firstErr error
	for _, raw := range raws {
		pe, err := extractor(goalID, raw)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pe.Summary = model.TruncateSummary(pe.Summary)
		out = append(out, pe)
	}
	return out, firstErr
}

// RawCount reports the total number of distinct raws in the index.
func (idx *Index) RawCount() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.raws)
}

// GoalsFor returns the sorted set of goal ids that contributed/used rawID.
func (idx *Index) GoalsFor(rawID string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	set := idx.rawToGoals[rawID]
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
