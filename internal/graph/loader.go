package graph

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const loaderBatchSize = 500

// Entity is one node of the travel dataset.
type Entity struct {
	ID          string
	Name        string
	Type        string
	City        string
	Description string
}

// Relation links two entities by a typed edge.
type Relation struct {
	SourceID string
	TargetID string
	Type     string
}

var relTypePattern = regexp.MustCompile(`[^A-Z0-9_]`)

// sanitizeRelType uppercases and strips characters that are not legal
// in a Cypher relationship type. Relationship types cannot be
// parameterized, so they are interpolated after sanitization.
func sanitizeRelType(relType string) string {
	upper := strings.ToUpper(strings.TrimSpace(relType))
	upper = strings.ReplaceAll(upper, " ", "_")
	upper = relTypePattern.ReplaceAllString(upper, "")
	if upper == "" {
		return "RELATED_TO"
	}
	return upper
}

// EnsureConstraints creates the uniqueness constraint for entity ids.
func (c *Client) EnsureConstraints(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `CREATE CONSTRAINT IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE`, nil)
	})
	return err
}

// UpsertEntities merges entities in batches.
func (c *Client) UpsertEntities(ctx context.Context, entities []Entity) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	query := `
		UNWIND $batch AS row
		MERGE (n:Entity {id: row.id})
		SET n.name = row.name, n.type = row.type, n.city = row.city, n.description = row.description`

	for start := 0; start < len(entities); start += loaderBatchSize {
		end := start + loaderBatchSize
		if end > len(entities) {
			end = len(entities)
		}

		batch := make([]map[string]any, 0, end-start)
		for _, e := range entities[start:end] {
			batch = append(batch, map[string]any{
				"id":          e.ID,
				"name":        e.Name,
				"type":        e.Type,
				"city":        e.City,
				"description": e.Description,
			})
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, query, map[string]any{"batch": batch})
		})
		if err != nil {
			return fmt.Errorf("failed to upsert entity batch at offset %d: %w", start, err)
		}
		log.Printf("graph loader: upserted %d/%d entities", end, len(entities))
	}

	return nil
}

// UpsertRelations merges relationships grouped by sanitized type.
func (c *Client) UpsertRelations(ctx context.Context, relations []Relation) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	byType := make(map[string][]Relation)
	for _, rel := range relations {
		relType := sanitizeRelType(rel.Type)
		byType[relType] = append(byType[relType], rel)
	}

	for relType, group := range byType {
		query := fmt.Sprintf(`
			UNWIND $batch AS row
			MATCH (a:Entity {id: row.source})
			MATCH (b:Entity {id: row.target})
			MERGE (a)-[:%s]->(b)`, relType)

		for start := 0; start < len(group); start += loaderBatchSize {
			end := start + loaderBatchSize
			if end > len(group) {
				end = len(group)
			}

			batch := make([]map[string]any, 0, end-start)
			for _, rel := range group[start:end] {
				batch = append(batch, map[string]any{
					"source": rel.SourceID,
					"target": rel.TargetID,
				})
			}

			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				return tx.Run(ctx, query, map[string]any{"batch": batch})
			})
			if err != nil {
				return fmt.Errorf("failed to upsert %s relations at offset %d: %w", relType, start, err)
			}
		}
		log.Printf("graph loader: upserted %d %s relations", len(group), relType)
	}

	return nil
}
