package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
	"github.com/wayfarer-labs/wayfarer/internal/graph"
)

// ScoredPassage pairs a stored passage with its similarity score.
type ScoredPassage struct {
	Passage domain.Passage
	Score   float32
}

// EmbeddingCache resolves normalized query text to a vector, memoized.
type EmbeddingCache interface {
	GetOrCompute(ctx context.Context, normalizedText string) ([]float32, error)
}

// PassageIndex is the nearest-neighbor read surface of the vector index.
type PassageIndex interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, topK int) ([]ScoredPassage, error)
}

// GraphStore fetches connected facts for the given entity ids.
type GraphStore interface {
	FetchFacts(ctx context.Context, entityIDs []string) ([]domain.GraphFact, error)
}

// SemanticRetriever embeds the query and searches the vector index.
type SemanticRetriever struct {
	cache EmbeddingCache
	index PassageIndex
	topK  int
}

func NewSemanticRetriever(cache EmbeddingCache, index PassageIndex, topK int) *SemanticRetriever {
	if topK <= 0 {
		topK = 5
	}
	return &SemanticRetriever{cache: cache, index: index, topK: topK}
}

// Search returns the topK most similar passages, best match first.
// Embedding provider failures propagate unchanged; index failures are
// surfaced as semantic retrieval errors.
func (r *SemanticRetriever) Search(ctx context.Context, query domain.Query) ([]domain.RetrievedPassage, error) {
	embedding, err := r.cache.GetOrCompute(ctx, query.Normalized)
	if err != nil {
		return nil, err
	}

	scored, err := r.index.SearchByEmbedding(ctx, embedding, r.topK)
	if err != nil {
		return nil, domain.NewRetrievalError(domain.OriginSemantic, err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	passages := make([]domain.RetrievedPassage, 0, len(scored))
	for _, sp := range scored {
		passages = append(passages, domain.RetrievedPassage{
			SourceID: sp.Passage.ID,
			Text:     passageText(sp.Passage),
			Score:    sp.Score,
			Origin:   domain.OriginSemantic,
		})
	}
	return passages, nil
}

// passageText renders a stored passage as one citable context line.
func passageText(p domain.Passage) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (`%s`)", p.Name, p.ID))
	if p.Kind != "" || p.City != "" {
		sb.WriteString(": a ")
		if p.Kind != "" {
			sb.WriteString(p.Kind)
		} else {
			sb.WriteString("place")
		}
		if p.City != "" {
			sb.WriteString(" in ")
			sb.WriteString(p.City)
		}
		sb.WriteString(".")
	}
	if p.Text != "" {
		sb.WriteString(" ")
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// GraphRetriever maps entity hints to bounded graph traversals.
type GraphRetriever struct {
	store GraphStore
}

func NewGraphRetriever(store GraphStore) *GraphRetriever {
	return &GraphRetriever{store: store}
}

// Search fetches connected facts for the given entity hints, falling
// back to query-derived hints when none are supplied. An empty result
// is a valid outcome, not an error.
func (r *GraphRetriever) Search(ctx context.Context, query domain.Query, entityHints []string) ([]domain.RetrievedPassage, error) {
	hints := entityHints
	if len(hints) == 0 {
		hints = entityHintsFromQuery(query)
	}
	if len(hints) == 0 {
		return nil, nil
	}

	facts, err := r.store.FetchFacts(ctx, hints)
	if err != nil {
		return nil, domain.NewRetrievalError(domain.OriginGraph, err)
	}

	passages := make([]domain.RetrievedPassage, 0, len(facts))
	for _, fact := range facts {
		passages = append(passages, domain.RetrievedPassage{
			SourceID: fact.TargetID,
			Text:     graph.FactText(fact),
			Origin:   domain.OriginGraph,
		})
	}
	return passages, nil
}

// entityHintsFromQuery guesses entity ids from the query tokens. The
// dataset keys places as <kind>_<slug>, so each token is tried as a
// city id. This only matters when semantic retrieval produced no ids.
func entityHintsFromQuery(query domain.Query) []string {
	fields := strings.Fields(query.Normalized)
	hints := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, "?!.,:;\"'")
		if len(token) < 3 {
			continue
		}
		hints = append(hints, "city_"+token)
	}
	return hints
}
