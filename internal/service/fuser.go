package service

import (
	"context"
	"strings"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

const (
	// DefaultMaxBundleSize caps the fused bundle to bound prompt size
	DefaultMaxBundleSize = 12

	// NoContextSummary is the fallback wording when nothing was retrieved
	NoContextSummary = "No relevant context was found for this question."

	summaryMaxTokens = 300
)

// GenerationClient is the chat surface of the generation provider.
type GenerationClient interface {
	Complete(ctx context.Context, turns []domain.ConversationTurn, maxTokens int) (string, error)
	CompleteStream(ctx context.Context, turns []domain.ConversationTurn, maxTokens int) (domain.AnswerStream, error)
}

// Fuser merges the two retrieval sources into one bounded bundle.
type Fuser struct {
	maxBundleSize int
}

func NewFuser(maxBundleSize int) *Fuser {
	if maxBundleSize <= 0 {
		maxBundleSize = DefaultMaxBundleSize
	}
	return &Fuser{maxBundleSize: maxBundleSize}
}

// Fuse concatenates semantic results then graph results, deduplicates
// by source id keeping the first occurrence, and truncates to the cap.
// Semantic passages keep their score order; graph passages keep their
// traversal order behind them.
func (f *Fuser) Fuse(semantic, graphFacts []domain.RetrievedPassage) domain.ContextBundle {
	seen := make(map[string]struct{}, len(semantic)+len(graphFacts))
	fused := make([]domain.RetrievedPassage, 0, len(semantic)+len(graphFacts))

	for _, list := range [][]domain.RetrievedPassage{semantic, graphFacts} {
		for _, p := range list {
			if _, ok := seen[p.SourceID]; ok {
				continue
			}
			seen[p.SourceID] = struct{}{}
			fused = append(fused, p)
			if len(fused) == f.maxBundleSize {
				return domain.ContextBundle{Passages: fused}
			}
		}
	}

	return domain.ContextBundle{Passages: fused}
}

// Summarizer compresses a bundle into a short text block via the
// fast-path generation call. Its output, not the raw bundle, feeds the
// final answer prompt.
type Summarizer struct {
	gen GenerationClient
}

func NewSummarizer(gen GenerationClient) *Summarizer {
	return &Summarizer{gen: gen}
}

// Summarize runs the noise-reduction call. It always runs, even for an
// empty bundle: the answer prompt expects a summary field, and the
// empty case must state the absence of context explicitly instead of
// being silently skipped.
func (s *Summarizer) Summarize(ctx context.Context, bundle domain.ContextBundle, query domain.Query) (domain.ContextSummary, error) {
	turns := BuildSummaryPrompt(query, bundle)

	text, err := s.gen.Complete(ctx, turns, summaryMaxTokens)
	if err != nil {
		return domain.ContextSummary{}, domain.NewDomainErrorWithCause(domain.ErrCodeSummarization, "context summarization failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = NoContextSummary
	}

	return domain.ContextSummary{Text: text}, nil
}
