// Package registry implements the Source Registry (§4.3): a read-only,
// post-construction map from source id to capability metadata and a live
// adapter instance. It never builds queries or fetches data itself — those
// are the SourceAdapter's job.
package registry

import (
	"context"

	"researchagent.dev/core/internal/model"
)

// ResultItem is one entry of a QueryResult. SnippetOrContent must never be
// truncated by an adapter — truncation, if any, happens downstream in the
// Evidence Model.
type ResultItem struct {
	Title             string
	URL               string
	SnippetOrContent  string
	Date              string
	Metadata          map[string]any
}

// QueryResult is the uniform return shape every adapter's ExecuteSearch
// produces, per §6.1.
type QueryResult struct {
	Source   string
	Success  bool
	Results  []ResultItem
	Total    int
	Error    string
	HTTPCode *int
}

// SourceAdapter is the §6.1 contract every data source implements. The wire
// protocol for any given API is explicitly out of scope per the
// specification; this interface is the boundary that keeps the rest of the
// system from caring about it.
type SourceAdapter interface {
	Metadata() model.SourceCapability

	// IsRelevant is an optional short-circuit the Action Executor may call
	// before spending an LLM call on query generation.
	IsRelevant(ctx context.Context, question string) bool

	// GenerateQuery returns nil to signal "not applicable" for this
	// question; implementations may make their own LLM call here.
	GenerateQuery(ctx context.Context, question string, hints map[string]any) (map[string]any, error)

	ExecuteSearch(ctx context.Context, queryParams map[string]any, apiKey string, limit int) QueryResult
}
