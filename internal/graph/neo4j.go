package graph

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/types"
)

const defaultConnectTimeout = 30 * time.Second

// Neo4jStore implements Store against a Neo4j database.
type Neo4jStore struct {
	cfg    config.GraphConfig
	driver neo4j.DriverWithContext
}

// NewNeo4jStore creates a store from the configuration. The store must
// be connected via Connect before use.
func NewNeo4jStore(cfg config.GraphConfig) (*Neo4jStore, error) {
	if cfg.URI == "" {
		return nil, types.NewError(types.GRAPH_CONNECTION_FAILED, "graph.uri is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Neo4jStore{cfg: cfg}, nil
}

// Connect creates the driver and verifies connectivity, retrying with
// exponential backoff up to the configured attempt count.
func (s *Neo4jStore) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(s.cfg.Username, s.cfg.Password, "")

	attempts := s.cfg.MaxRetries + 1
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		driver, err := neo4j.NewDriverWithContext(s.cfg.URI, auth,
			func(c *neo4j.Config) {
				c.ConnectionAcquisitionTimeout = s.cfg.ConnectTimeout
			})
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				s.driver = driver
				return nil
			}
			driver.Close(ctx)
		}
		lastErr = err

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > s.cfg.ConnectTimeout {
			delay = s.cfg.ConnectTimeout
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt canceled", ctx.Err())
		}
	}

	return types.WrapRetryableError(types.GRAPH_CONNECTION_FAILED,
		fmt.Sprintf("failed to connect to %s after %d attempts", s.cfg.URI, attempts), lastErr)
}

// Close shuts down the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return types.WrapError(types.GRAPH_CONNECTION_FAILED, "failed to close driver", err)
	}
	s.driver = nil
	return nil
}

// Health verifies connectivity with a short timeout.
func (s *Neo4jStore) Health(ctx context.Context) types.HealthStatus {
	if s.driver == nil {
		return types.Unhealthy("graph driver not connected")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}
	return types.Healthy("connected to Neo4j")
}

// EnsureSchema creates the uniqueness constraints the upserts MERGE on.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT control_id IF NOT EXISTS
		 FOR (c:Control) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT document_source IF NOT EXISTS
		 FOR (d:Document) REQUIRE d.source IS UNIQUE`,
	}
	for _, stmt := range statements {
		if _, err := s.write(ctx, stmt, nil); err != nil {
			return types.WrapError(types.GRAPH_QUERY_FAILED, "failed to create constraint", err)
		}
	}
	return nil
}

// UpsertControl merges a control node by its natural ID.
func (s *Neo4jStore) UpsertControl(ctx context.Context, control Control) error {
	return s.UpsertControls(ctx, []Control{control})
}

// UpsertControls merges multiple controls in a single transaction.
func (s *Neo4jStore) UpsertControls(ctx context.Context, controls []Control) error {
	if len(controls) == 0 {
		return nil
	}
	for i := range controls {
		if err := controls[i].Validate(); err != nil {
			return err
		}
	}

	rows := make([]map[string]any, len(controls))
	for i, c := range controls {
		rows[i] = map[string]any{
			"id":          c.ID,
			"title":       c.Title,
			"description": c.Description,
			"framework":   c.Framework,
			"domain":      c.Domain,
			"level":       c.Level,
			"source":      c.Source,
			"section":     c.Section,
		}
	}

	cypher := `
		UNWIND $rows AS row
		MERGE (c:Control {id: row.id})
		SET c.title = row.title,
		    c.description = row.description,
		    c.framework = row.framework,
		    c.domain = row.domain,
		    c.level = row.level,
		    c.source = row.source,
		    c.section = row.section,
		    c.updated_at = datetime()`
	if _, err := s.write(ctx, cypher, map[string]any{"rows": rows}); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to upsert %d controls", len(controls)), err)
	}
	return nil
}

// UpsertDocument merges a document node by its source.
func (s *Neo4jStore) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.Source == "" {
		return types.NewError(types.GRAPH_QUERY_FAILED, "document source cannot be empty")
	}

	cypher := `
		MERGE (d:Document {source: $source})
		SET d.title = $title,
		    d.type = $type,
		    d.hash = $hash,
		    d.ingested_at = $ingested_at`
	params := map[string]any{
		"source":      doc.Source,
		"title":       doc.Title,
		"type":        doc.Type,
		"hash":        doc.Hash,
		"ingested_at": doc.IngestedAt.UTC().Format(time.RFC3339),
	}
	if _, err := s.write(ctx, cypher, params); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to upsert document %s", doc.Source), err)
	}
	return nil
}

// LinkControlToDocument merges a PART_OF edge from control to document.
func (s *Neo4jStore) LinkControlToDocument(ctx context.Context, controlID, source string) error {
	cypher := `
		MATCH (c:Control {id: $control_id})
		MATCH (d:Document {source: $source})
		MERGE (c)-[:PART_OF]->(d)`
	params := map[string]any{"control_id": controlID, "source": source}
	if _, err := s.write(ctx, cypher, params); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to link control %s to %s", controlID, source), err)
	}
	return nil
}

// CreateRelationship merges a typed edge between two controls. The
// relation type is validated before interpolation into the query.
func (s *Neo4jStore) CreateRelationship(ctx context.Context, rel Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	cypher := fmt.Sprintf(`
		MATCH (from:Control {id: $from_id})
		MATCH (to:Control {id: $to_id})
		MERGE (from)-[r:%s]->(to)
		SET r.confidence = $confidence,
		    r.source = $source`, rel.Type)
	params := map[string]any{
		"from_id":    rel.FromID,
		"to_id":      rel.ToID,
		"confidence": rel.Confidence,
		"source":     rel.Source,
	}
	if _, err := s.write(ctx, cypher, params); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to create %s from %s to %s", rel.Type, rel.FromID, rel.ToID), err)
	}
	return nil
}

// GetControl fetches a control by its natural ID.
func (s *Neo4jStore) GetControl(ctx context.Context, id string) (*Control, error) {
	records, err := s.read(ctx, `MATCH (c:Control {id: $id}) RETURN c`, map[string]any{"id": id})
	if err != nil {
		return nil, types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to look up control %s", id), err)
	}
	if len(records) == 0 {
		return nil, types.NewError(types.GRAPH_NODE_NOT_FOUND,
			fmt.Sprintf("control not found: %s", id))
	}

	node, ok := recordNode(records[0], "c")
	if !ok {
		return nil, types.NewError(types.GRAPH_QUERY_FAILED, "malformed control record")
	}
	control := controlFromProps(node.Props)
	return &control, nil
}

// FindControls returns controls matching the filter, ordered by ID.
func (s *Neo4jStore) FindControls(ctx context.Context, filter ControlFilter) ([]Control, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	cypher := `
		MATCH (c:Control)
		WHERE ($framework = '' OR c.framework = $framework)
		  AND ($domain = '' OR c.domain = $domain)
		  AND ($text = ''
		       OR toLower(c.title) CONTAINS toLower($text)
		       OR toLower(c.description) CONTAINS toLower($text))
		RETURN c
		ORDER BY c.id
		LIMIT $limit`
	params := map[string]any{
		"framework": filter.Framework,
		"domain":    filter.Domain,
		"text":      filter.Text,
		"limit":     limit,
	}

	records, err := s.read(ctx, cypher, params)
	if err != nil {
		return nil, types.WrapError(types.GRAPH_QUERY_FAILED, "control search failed", err)
	}

	controls := make([]Control, 0, len(records))
	for _, record := range records {
		if node, ok := recordNode(record, "c"); ok {
			controls = append(controls, controlFromProps(node.Props))
		}
	}
	return controls, nil
}

// Neighborhood returns controls within depth hops of id. With no
// relation types given, all edge types are traversed.
func (s *Neo4jStore) Neighborhood(ctx context.Context, id string, depth int, relTypes []RelationType) ([]RelatedControl, error) {
	if depth <= 0 {
		depth = 1
	}

	relFilter := ""
	if len(relTypes) > 0 {
		names := make([]string, len(relTypes))
		for i, rt := range relTypes {
			if !rt.IsValid() {
				return nil, types.NewError(types.GRAPH_QUERY_FAILED,
					fmt.Sprintf("invalid relation type %q", rt))
			}
			names[i] = string(rt)
		}
		relFilter = ":" + strings.Join(names, "|")
	}

	// depth and relation types are validated above; only they are
	// interpolated.
	cypher := fmt.Sprintf(`
		MATCH path = (c:Control {id: $id})-[%s*1..%d]-(n:Control)
		WHERE n.id <> $id
		RETURN n, min(length(path)) AS distance
		ORDER BY distance, n.id`, relFilter, depth)

	records, err := s.read(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("neighborhood traversal failed for %s", id), err)
	}

	related := make([]RelatedControl, 0, len(records))
	for _, record := range records {
		node, ok := recordNode(record, "n")
		if !ok {
			continue
		}
		distance := 1
		if v, ok := record.Get("distance"); ok {
			if d, ok := v.(int64); ok {
				distance = int(d)
			}
		}
		related = append(related, RelatedControl{
			Control:  controlFromProps(node.Props),
			Distance: distance,
		})
	}
	return related, nil
}

// DeleteSource removes the document node and all controls that were
// extracted only from that document. Controls shared with other
// documents keep their nodes.
func (s *Neo4jStore) DeleteSource(ctx context.Context, source string) error {
	cypher := `
		MATCH (c:Control)-[:PART_OF]->(d:Document {source: $source})
		WHERE NOT EXISTS {
			MATCH (c)-[:PART_OF]->(other:Document)
			WHERE other.source <> $source
		}
		DETACH DELETE c`
	if _, err := s.write(ctx, cypher, map[string]any{"source": source}); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to delete controls for source %s", source), err)
	}

	if _, err := s.write(ctx,
		`MATCH (d:Document {source: $source}) DETACH DELETE d`,
		map[string]any{"source": source}); err != nil {
		return types.WrapError(types.GRAPH_QUERY_FAILED,
			fmt.Sprintf("failed to delete document %s", source), err)
	}
	return nil
}

// Stats counts controls, documents, and relationships. Each count runs
// in its own subquery so an empty label cannot zero out the others.
func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	cypher := `
		CALL { MATCH (c:Control) RETURN count(c) AS controls }
		CALL { MATCH (d:Document) RETURN count(d) AS documents }
		CALL { MATCH ()-[r]->() RETURN count(r) AS relationships }
		RETURN controls, documents, relationships`

	records, err := s.read(ctx, cypher, nil)
	if err != nil {
		return Stats{}, types.WrapError(types.GRAPH_QUERY_FAILED, "stats query failed", err)
	}
	if len(records) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	if v, ok := records[0].Get("controls"); ok {
		stats.Controls, _ = v.(int64)
	}
	if v, ok := records[0].Get("documents"); ok {
		stats.Documents, _ = v.(int64)
	}
	if v, ok := records[0].Get("relationships"); ok {
		stats.Relationships, _ = v.(int64)
	}
	return stats, nil
}

func (s *Neo4jStore) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if s.driver == nil {
		return nil, types.NewError(types.GRAPH_CONNECTION_FAILED, "graph driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.cfg.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

func (s *Neo4jStore) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if s.driver == nil {
		return nil, types.NewError(types.GRAPH_CONNECTION_FAILED, "graph driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.cfg.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

// recordNode extracts a node value from a record by column name.
func recordNode(record *neo4j.Record, key string) (neo4j.Node, bool) {
	v, ok := record.Get(key)
	if !ok {
		return neo4j.Node{}, false
	}
	node, ok := v.(neo4j.Node)
	return node, ok
}

// controlFromProps maps node properties back onto a Control.
func controlFromProps(props map[string]any) Control {
	str := func(key string) string {
		if v, ok := props[key].(string); ok {
			return v
		}
		return ""
	}
	return Control{
		ID:          str("id"),
		Title:       str("title"),
		Description: str("description"),
		Framework:   str("framework"),
		Domain:      str("domain"),
		Level:       str("level"),
		Source:      str("source"),
		Section:     str("section"),
	}
}
