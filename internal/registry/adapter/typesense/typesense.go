// Package typesense is one illustrative SourceAdapter (§6.1): full-text
// search over a Typesense collection. It is wired, not merely declared, to
// exercise github.com/typesense/typesense-go/v4 as a real dependency.
package typesense

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"

	"researchagent.dev/core/internal/model"
	"researchagent.dev/core/internal/registry"
)

const sourceID = "typesense"

// Adapter searches a single Typesense collection. The research agent treats
// it as a generic "search our indexed corpus" source; which collection that
// is belongs to deployment configuration, not this package.
type Adapter struct {
	client         *typesense.Client
	collectionName string
	queryBy        string
}

// New builds an adapter against serverURL using apiKey. queryBy is the
// comma-joined field list Typesense should match against (e.g.
// "title,content").
func New(serverURL, apiKey, collectionName, queryBy string) *Adapter {
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
	)
	return &Adapter{client: client, collectionName: collectionName, queryBy: queryBy}
}

func (a *Adapter) Metadata() model.SourceCapability {
	return model.SourceCapability{
		ID:                    sourceID,
		DisplayName:           "Internal Search (Typesense)",
		Category:              "internal_index",
		Description:           "Full-text search over a locally indexed document collection.",
		RequiresAPIKey:        true,
		QueryStrategies:       []string{"keyword", "phrase"},
		TypicalResultCount:    10,
		RecommendedMaxQueries: 5,
	}
}

func (a *Adapter) IsRelevant(ctx context.Context, question string) bool {
	return strings.TrimSpace(question) != ""
}

func (a *Adapter) GenerateQuery(ctx context.Context, question string, hints map[string]any) (map[string]any, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, nil
	}
	return map[string]any{"q": q}, nil
}

func (a *Adapter) ExecuteSearch(ctx context.Context, queryParams map[string]any, apiKey string, limit int) registry.QueryResult {
	q, _ := queryParams["q"].(string)
	if q == "" {
		return registry.QueryResult{Source: sourceID, Success: false, Error: "missing query string"}
	}
	if limit <= 0 {
		limit = 10
	}

	perPage := limit
	params := &api.SearchCollectionParams{
		Q:       q,
		QueryBy: a.queryBy,
		PerPage: &perPage,
	}

	result, err := a.client.Collection(a.collectionName).Documents().Search(ctx, params)
	if err != nil {
		return registry.QueryResult{Source: sourceID, Success: false, Error: fmt.Sprintf("typesense search: %v", err)}
	}

	items := make([]registry.ResultItem, 0)
	if result.Hits != nil {
		for _, hit := range *result.Hits {
			if hit.Document == nil {
				continue
			}
			doc := *hit.Document
			items = append(items, registry.ResultItem{
				Title:            stringField(doc, "title"),
				URL:              stringField(doc, "url"),
				SnippetOrContent: stringField(doc, "content"),
				Metadata:         doc,
			})
		}
	}

	total := 0
	if result.Found != nil {
		total = *result.Found
	}

	return registry.QueryResult{
		Source:  sourceID,
		Success: true,
		Results: items,
		Total:   total,
	}
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
