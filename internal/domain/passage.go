package domain

// PassageOrigin identifies which retriever produced a passage.
type PassageOrigin string

const (
	OriginSemantic PassageOrigin = "semantic"
	OriginGraph    PassageOrigin = "graph"
)

// RetrievedPassage is one unit of supporting context. Semantic passages
// carry a similarity score; graph passages carry no comparable score
// and keep their traversal order instead.
type RetrievedPassage struct {
	SourceID string
	Text     string
	Score    float32
	Origin   PassageOrigin
}

// ContextBundle is the ordered, deduplicated, size-capped set of
// passages handed to summarization.
type ContextBundle struct {
	Passages []RetrievedPassage
}

// Empty reports whether no passage survived fusion.
func (b ContextBundle) Empty() bool {
	return len(b.Passages) == 0
}

// SourceIDs returns the passage source ids in bundle order.
func (b ContextBundle) SourceIDs() []string {
	ids := make([]string, 0, len(b.Passages))
	for _, p := range b.Passages {
		ids = append(ids, p.SourceID)
	}
	return ids
}

// ContextSummary is the compact text block produced from a bundle by
// the fast-path generation call. Recomputed per query, never persisted.
type ContextSummary struct {
	Text string
}

// GraphFact is one flattened relationship record from the graph store.
type GraphFact struct {
	SourceID    string
	Relation    string
	TargetID    string
	TargetName  string
	TargetDesc  string
	TargetLabel string
}

// Passage holds a stored travel passage as persisted in the vector
// index. Embedding may be nil until the backfill worker fills it in.
type Passage struct {
	ID        string
	Name      string
	Kind      string
	City      string
	Text      string
	Embedding []float32
}
