// Package websearch is the second illustrative SourceAdapter (§6.1): a
// generic HTTP web-search API (any provider exposing a "query in, ranked
// results out" JSON endpoint — Brave Search, SerpAPI and similar all fit
// this shape). The concrete provider's wire format is explicitly out of
// scope per the specification; this adapter targets one representative
// shape and is meant to be copied for others.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"researchagent.dev/core/internal/registry"
	"researchagent.dev/core/internal/errclass"
	"researchagent.dev/core/internal/model"
)

const sourceID = "web_search"

type rawResponse struct {
	Results []rawResult `json:"results"`
}

type rawResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// Adapter queries a single web-search endpoint over HTTP with the query
// passed as a "q" query-string parameter and the key as a bearer token.
type Adapter struct {
	endpoint   string
	httpClient *http.Client
	classifier *errclass.Classifier
}

func New(endpoint string, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Adapter{
		endpoint:   endpoint,
		httpClient: httpClient,
		classifier: errclass.New(errclass.DefaultConfig()),
	}
}

func (a *Adapter) Metadata() model.SourceCapability {
	return model.SourceCapability{
		ID:                    sourceID,
		DisplayName:           "Web Search",
		Category:              "web_search",
		Description:           "General-purpose web search for current, broadly indexed content.",
		RequiresAPIKey:        true,
		QueryStrategies:       []string{"keyword", "natural_language", "site_restricted"},
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
	params := map[string]any{"q": q}
	if site, ok := hints["site"].(string); ok && site != "" {
		params["q"] = fmt.Sprintf("%s site:%s", q, site)
	}
	return params, nil
}

func (a *Adapter) ExecuteSearch(ctx context.Context, queryParams map[string]any, apiKey string, limit int) registry.QueryResult {
	q, _ := queryParams["q"].(string)
	if q == "" {
		return registry.QueryResult{Source: sourceID, Success: false, Error: "missing query string"}
	}
	if limit <= 0 {
		limit = 10
	}

	reqURL := fmt.Sprintf("%s?q=%s&limit=%d", a.endpoint, url.QueryEscape(q), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return registry.QueryResult{Source: sourceID, Success: false, Error: err.Error()}
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		apiErr := a.classifier.Classify(err.Error(), nil, sourceID)
		return registry.QueryResult{Source: sourceID, Success: false, Error: apiErr.Message}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		code := resp.StatusCode
		apiErr := a.classifier.Classify(resp.Status, &code, sourceID)
		return registry.QueryResult{Source: sourceID, Success: false, Error: apiErr.Message, HTTPCode: &code}
	}

	var parsed rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return registry.QueryResult{Source: sourceID, Success: false, Error: fmt.Sprintf("decode web search response: %v", err)}
	}

	items := make([]registry.ResultItem, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		items = append(items, registry.ResultItem{
			Title:            r.Title,
			URL:              r.URL,
			SnippetOrContent: r.Snippet,
			Date:             r.Date,
			Metadata:         map[string]any{"raw": r},
		})
	}

	return registry.QueryResult{
		Source:  sourceID,
		Success: true,
		Results: items,
		Total:   len(items),
	}
}
