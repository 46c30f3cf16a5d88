// Package graph repurposes the teacher's ArangoDB code-call-graph store
// (common/arangodb/client.go) into a durable mirror of the Goal DAG plus
// the goal<->raw-result evidence-association graph (§4.2, §11's "follow
// entity leads" traversal from the PURPOSE section). Where the teacher
// traverses "calls"/"implements" edges over functions/types, this package
// traverses "depends_on"/"evidence_of" edges over goals/raw_results —
// same connection setup, same AQL-traversal idiom, a different domain.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"researchagent.dev/core/internal/model"
)

const graphName = "research_graph"

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("graph: URL is required")
	}
	if c.Database == "" {
		return fmt.Errorf("graph: database name is required")
	}
	return nil
}

// GoalNode is the traversal-result projection of a Goal — just enough to
// render a lead without round-tripping the full Goal aggregate.
type GoalNode struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Depth       int    `json:"depth"`
}

// Client is the Goal DAG + evidence-association graph contract.
type Client interface {
	EnsureSchema(ctx context.Context) error

	UpsertGoal(ctx context.Context, g *model.Goal) error
	UpsertRawResult(ctx context.Context, r *model.RawResult) error

	// LinkDependency records a depends_on edge (goal -> the goal it
	// depends on), mirroring the DAG Scheduler's Dependencies edges.
	LinkDependency(ctx context.Context, goalID, dependsOnID string) error

	// LinkEvidence records an evidence_of edge (raw_result -> goal), the
	// same association the in-memory evidence.Index tracks per run.
	LinkEvidence(ctx context.Context, rawID, goalID string) error

	// Ancestors walks depends_on edges outward from a goal — the goals it
	// is blocked on, up to maxDepth hops.
	Ancestors(ctx context.Context, goalID string, maxDepth int) ([]GoalNode, error)

	// Descendants walks depends_on edges inward — goals blocked on this
	// one, up to maxDepth hops.
	Descendants(ctx context.Context, goalID string, maxDepth int) ([]GoalNode, error)

	// FollowLeads starts from a raw evidence item and returns every goal
	// that consumed it, plus every goal in their dependency neighborhood —
	// the durable equivalent of "an analyst re-opens an old result and
	// wants to see what else it fed into."
	FollowLeads(ctx context.Context, rawID string, maxDepth int) ([]GoalNode, error)

	Close() error
}

type client struct {
	conn   connection.Connection
	driver arangodb.Client
	db     arangodb.Database
	cfg    Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))
	if err := conn.SetAuthentication(connection.NewBasicAuth(cfg.Username, cfg.Password)); err != nil {
		return nil, fmt.Errorf("graph: auth: %w", err)
	}

	c := &client{conn: conn, driver: arangodb.NewClient(conn), cfg: cfg}
	return c, nil
}

func (c *client) Close() error { return nil }

func (c *client) EnsureSchema(ctx context.Context) error {
	exists, err := c.driver.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("graph: check database: %w", err)
	}
	if !exists {
		if _, err := c.driver.CreateDatabase(ctx, c.cfg.Database, nil); err != nil {
			return fmt.Errorf("graph: create database: %w", err)
		}
	}
	db, err := c.driver.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("graph: get database: %w", err)
	}
	c.db = db

	for _, name := range []string{"goals", "raw_results"} {
		if err := c.ensureCollection(ctx, name, false); err != nil {
			return err
		}
	}
	for _, name := range []string{"depends_on", "evidence_of"} {
		if err := c.ensureCollection(ctx, name, true); err != nil {
			return err
		}
	}

	graphExists, err := c.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("graph: check graph: %w", err)
	}
	if !graphExists {
		def := &arangodb.GraphDefinition{
			Name: graphName,
			EdgeDefinitions: []arangodb.EdgeDefinition{
				{Collection: "depends_on", From: []string{"goals"}, To: []string{"goals"}},
				{Collection: "evidence_of", From: []string{"raw_results"}, To: []string{"goals"}},
			},
		}
		if _, err := c.db.CreateGraph(ctx, graphName, def, nil); err != nil {
			return fmt.Errorf("graph: create graph: %w", err)
		}
		slog.InfoContext(ctx, "research graph created", "graph", graphName)
	}
	return nil
}

func (c *client) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("graph: check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	props := &arangodb.CreateCollectionPropertiesV2{}
	colType := arangodb.CollectionTypeDocument
	if isEdge {
		colType = arangodb.CollectionTypeEdge
	}
	props.Type = &colType
	if _, err := c.db.CreateCollectionV2(ctx, name, props); err != nil {
		return fmt.Errorf("graph: create collection %s: %w", name, err)
	}
	return nil
}

func (c *client) UpsertGoal(ctx context.Context, g *model.Goal) error {
	if c.db == nil {
		return fmt.Errorf("graph: schema not initialized")
	}
	col, err := c.db.GetCollection(ctx, "goals", nil)
	if err != nil {
		return fmt.Errorf("graph: get goals collection: %w", err)
	}
	doc := map[string]any{
		"_key":        g.ID,
		"description": g.Description,
		"status":      string(g.Status),
		"depth":       g.Depth,
		"priority":    g.Priority,
	}
	return insertIgnoringDuplicates(ctx, col, doc, fmt.Sprintf("upsert goal %s", g.ID))
}

func (c *client) UpsertRawResult(ctx context.Context, r *model.RawResult) error {
	if c.db == nil {
		return fmt.Errorf("graph: schema not initialized")
	}
	col, err := c.db.GetCollection(ctx, "raw_results", nil)
	if err != nil {
		return fmt.Errorf("graph: get raw_results collection: %w", err)
	}
	doc := map[string]any{
		"_key":       r.ID,
		"source_id":  r.SourceID,
		"title":      r.Title,
		"url":        r.URL,
		"fetched_at": r.FetchedAt.Format(time.RFC3339),
	}
	return insertIgnoringDuplicates(ctx, col, doc, fmt.Sprintf("upsert raw result %s", r.ID))
}

func (c *client) LinkDependency(ctx context.Context, goalID, dependsOnID string) error {
	return c.createEdge(ctx, "depends_on", "goals", goalID, "goals", dependsOnID)
}

func (c *client) LinkEvidence(ctx context.Context, rawID, goalID string) error {
	return c.createEdge(ctx, "evidence_of", "raw_results", rawID, "goals", goalID)
}

func (c *client) createEdge(ctx context.Context, collection, fromCol, fromKey, toCol, toKey string) error {
	if c.db == nil {
		return fmt.Errorf("graph: schema not initialized")
	}
	col, err := c.db.GetCollection(ctx, collection, nil)
	if err != nil {
		return fmt.Errorf("graph: get %s collection: %w", collection, err)
	}
	doc := map[string]any{
		"_key":  fromKey + "-" + toKey,
		"_from": fmt.Sprintf("%s/%s", fromCol, fromKey),
		"_to":   fmt.Sprintf("%s/%s", toCol, toKey),
	}
	return insertIgnoringDuplicates(ctx, col, doc, fmt.Sprintf("create edge %s/%s->%s", collection, fromKey, toKey))
}

// insertIgnoringDuplicates mirrors the teacher's IngestNodes/IngestEdges
// idiom: a repeated upsert of the same _key is not an error, it is the
// expected shape of a goal/result being re-touched across a run.
func insertIgnoringDuplicates(ctx context.Context, col arangodb.Collection, doc map[string]any, what string) error {
	reader, err := col.CreateDocuments(ctx, []map[string]any{doc})
	if err != nil {
		return fmt.Errorf("graph: %s: %w", what, err)
	}
	for {
		if _, err := reader.Read(); err != nil {
			break
		}
	}
	return nil
}

func (c *client) Ancestors(ctx context.Context, goalID string, maxDepth int) ([]GoalNode, error) {
	query := `
		FOR v IN 1..@depth OUTBOUND @start GRAPH @graph
			OPTIONS { edgeCollections: ["depends_on"] }
			RETURN { id: v._key, description: v.description, status: v.status, depth: v.depth }
	`
	return c.traverse(ctx, query, "goals/"+goalID, maxDepth)
}

func (c *client) Descendants(ctx context.Context, goalID string, maxDepth int) ([]GoalNode, error) {
	query := `
		FOR v IN 1..@depth INBOUND @start GRAPH @graph
			OPTIONS { edgeCollections: ["depends_on"] }
			RETURN { id: v._key, description: v.description, status: v.status, depth: v.depth }
	`
	return c.traverse(ctx, query, "goals/"+goalID, maxDepth)
}

func (c *client) FollowLeads(ctx context.Context, rawID string, maxDepth int) ([]GoalNode, error) {
	query := `
		FOR goal IN 1..1 OUTBOUND @start GRAPH @graph
			OPTIONS { edgeCollections: ["evidence_of"] }
			FOR v IN 0..@depth ANY goal._id GRAPH @graph
				OPTIONS { edgeCollections: ["depends_on"] }
				RETURN DISTINCT { id: v._key, description: v.description, status: v.status, depth: v.depth }
	`
	return c.traverse(ctx, query, "raw_results/"+rawID, maxDepth)
}

func (c *client) traverse(ctx context.Context, query, start string, depth int) ([]GoalNode, error) {
	if c.db == nil {
		return nil, fmt.Errorf("graph: schema not initialized")
	}
	if depth <= 0 {
		depth = 2
	}
	cursor, err := c.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{"start": start, "depth": depth, "graph": graphName},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: traverse: %w", err)
	}
	defer cursor.Close()

	var out []GoalNode
	for cursor.HasMore() {
		var n GoalNode
		if _, err := cursor.ReadDocument(ctx, &n); err != nil {
			return nil, fmt.Errorf("graph: read traversal result: %w", err)
		}
		if n.ID != "" {
			out = append(out, n)
		}
	}
	return out, nil
}
