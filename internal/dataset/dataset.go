package dataset

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
	"github.com/wayfarer-labs/wayfarer/internal/graph"
)

// maxDescriptionText bounds the passage text taken from a node
// description when no dedicated semantic text is present.
const maxDescriptionText = 1000

// Connection is one typed edge from a node to another node.
type Connection struct {
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

// Node is one entry of the travel dataset JSON. The file is a flat
// array of nodes; edges live inline on their source node.
type Node struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Name         string       `json:"name"`
	City         string       `json:"city"`
	Region       string       `json:"region"`
	Description  string       `json:"description"`
	SemanticText string       `json:"semantic_text"`
	Tags         []string     `json:"tags"`
	Connections  []Connection `json:"connections"`
}

// Parse decodes the dataset JSON. Nodes without an id are rejected
// outright; everything else is tolerated and filtered downstream.
func Parse(data []byte) ([]Node, error) {
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	for i, node := range nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("dataset node %d has no id", i)
		}
	}
	return nodes, nil
}

// PassageText returns the text indexed for semantic search: the
// curated semantic text when present, otherwise a bounded slice of the
// description. Empty means the node has nothing to index.
func (n Node) PassageText() string {
	if text := strings.TrimSpace(n.SemanticText); text != "" {
		return text
	}
	desc := strings.TrimSpace(n.Description)
	if len(desc) > maxDescriptionText {
		desc = desc[:maxDescriptionText]
	}
	return desc
}

// CityName prefers the city field and falls back to region.
func (n Node) CityName() string {
	if n.City != "" {
		return n.City
	}
	return n.Region
}

// Passages converts nodes to storable passages, skipping nodes with no
// indexable text. Embeddings are left nil for the backfill worker.
func Passages(nodes []Node) []*domain.Passage {
	passages := make([]*domain.Passage, 0, len(nodes))
	for _, node := range nodes {
		text := node.PassageText()
		if text == "" {
			continue
		}
		passages = append(passages, &domain.Passage{
			ID:   node.ID,
			Name: node.Name,
			Kind: node.Type,
			City: node.CityName(),
			Text: text,
		})
	}
	return passages
}

// Entities converts every node to a graph entity. Unlike passages,
// nodes without semantic text still become graph nodes so their edges
// stay traversable.
func Entities(nodes []Node) []graph.Entity {
	entities := make([]graph.Entity, 0, len(nodes))
	for _, node := range nodes {
		entities = append(entities, graph.Entity{
			ID:          node.ID,
			Name:        node.Name,
			Type:        node.Type,
			City:        node.CityName(),
			Description: node.Description,
		})
	}
	return entities
}

// Relations flattens the inline connections of all nodes into edges.
// Connections missing a target or relation are dropped.
func Relations(nodes []Node) []graph.Relation {
	var relations []graph.Relation
	for _, node := range nodes {
		for _, conn := range node.Connections {
			if conn.Target == "" || conn.Relation == "" {
				continue
			}
			relations = append(relations, graph.Relation{
				SourceID: node.ID,
				TargetID: conn.Target,
				Type:     conn.Relation,
			})
		}
	}
	return relations
}
