package service

import (
	"context"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

const answerMaxTokens = 800

// AnswerGenerator drives the final streaming generation call.
type AnswerGenerator struct {
	gen GenerationClient
}

func NewAnswerGenerator(gen GenerationClient) *AnswerGenerator {
	return &AnswerGenerator{gen: gen}
}

// Generate builds the structured answer prompt and opens the token
// stream. The stream carries raw text fragments in provider order; the
// caller owns pacing and cancellation. Nothing is cached.
func (g *AnswerGenerator) Generate(ctx context.Context, query domain.Query, summary domain.ContextSummary) (domain.AnswerStream, error) {
	prompt := BuildAnswerPrompt(query, summary)

	stream, err := g.gen.CompleteStream(ctx, prompt.Turns(), answerMaxTokens)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeGeneration, "answer generation failed", err)
	}
	return stream, nil
}
