// Package graph provides the Neo4j client for relational travel facts.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

const (
	// DefaultDepthLimit bounds traversal to direct neighbors plus one hop
	DefaultDepthLimit = 2
	// DefaultFactLimit caps the number of facts returned per query
	DefaultFactLimit = 20

	noDescription = "No description available."
)

// Config holds Neo4j connection and traversal settings
type Config struct {
	URI        string
	User       string
	Password   string
	Database   string
	DepthLimit int
	FactLimit  int
}

// Client wraps the Neo4j driver with bounded traversal queries.
type Client struct {
	driver     neo4j.DriverWithContext
	database   string
	depthLimit int
	factLimit  int
}

// NewClient connects to Neo4j and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	depthLimit := cfg.DepthLimit
	if depthLimit <= 0 {
		depthLimit = DefaultDepthLimit
	}
	factLimit := cfg.FactLimit
	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}

	return &Client{
		driver:     driver,
		database:   cfg.Database,
		depthLimit: depthLimit,
		factLimit:  factLimit,
	}, nil
}

// Close releases the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// FetchFacts traverses outward from the given entity ids and flattens
// each matched path into one relationship fact. Traversal depth and
// result count are bounded by the client configuration.
func (c *Client) FetchFacts(ctx context.Context, entityIDs []string) ([]domain.GraphFact, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, traversalQuery(c.depthLimit), map[string]any{
			"entity_ids": entityIDs,
			"fact_limit": c.factLimit,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	rows, ok := records.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected neo4j result type %T", records)
	}

	facts := make([]domain.GraphFact, 0, len(rows))
	for _, record := range rows {
		facts = append(facts, factFromRecord(record))
	}
	return facts, nil
}

// traversalQuery renders the bounded traversal for the given depth.
// Depth is a trusted configuration value, never user input.
func traversalQuery(depth int) string {
	return fmt.Sprintf(`
		UNWIND $entity_ids AS entity_id
		MATCH path = (n:Entity {id: entity_id})-[*1..%d]-(m:Entity)
		WITH entity_id, relationships(path)[-1] AS r, m
		RETURN DISTINCT
		  entity_id AS source_id,
		  type(r) AS relation,
		  m.id AS target_id,
		  coalesce(m.name, m.id) AS target_name,
		  coalesce(left(m.description, 300), '%s') AS target_desc,
		  coalesce(m.type, head(labels(m))) AS target_label
		LIMIT $fact_limit`, depth, noDescription)
}

func factFromRecord(record *neo4j.Record) domain.GraphFact {
	return domain.GraphFact{
		SourceID:    stringValue(record, "source_id"),
		Relation:    stringValue(record, "relation"),
		TargetID:    stringValue(record, "target_id"),
		TargetName:  stringValue(record, "target_name"),
		TargetDesc:  stringValue(record, "target_desc"),
		TargetLabel: stringValue(record, "target_label"),
	}
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprint(value)
	}
	return s
}

// FactText flattens a graph fact into a single line of context.
func FactText(f domain.GraphFact) string {
	var sb strings.Builder
	sb.WriteString(f.SourceID)
	sb.WriteString(" ")
	sb.WriteString(f.Relation)
	sb.WriteString(" ")
	if f.TargetName != "" {
		sb.WriteString(f.TargetName)
	} else {
		sb.WriteString(f.TargetID)
	}
	sb.WriteString(" (")
	sb.WriteString(f.TargetID)
	sb.WriteString(")")
	if f.TargetDesc != "" && f.TargetDesc != noDescription {
		sb.WriteString(": ")
		sb.WriteString(f.TargetDesc)
	}
	return sb.String()
}
