package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

const (
	// DefaultBackfillBatchSize bounds how many passages one poll embeds
	DefaultBackfillBatchSize = 32
)

// PassageSource lists passages that still need vectors and stores the
// computed ones.
type PassageSource interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Passage, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Embedder turns passage text into a vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// BackfillWorker embeds passages that were loaded without vectors. It
// runs as a JobProcessor under the polling Worker; each poll handles
// one bounded batch so a large dataset load drains gradually without
// starving the provider quota.
type BackfillWorker struct {
	source    PassageSource
	embedder  Embedder
	batchSize int
}

// NewBackfillWorker creates a new BackfillWorker instance
func NewBackfillWorker(source PassageSource, embedder Embedder, batchSize int) *BackfillWorker {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}
	return &BackfillWorker{
		source:    source,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *BackfillWorker) ProcessJobs(ctx context.Context) error {
	passages, err := w.source.ListMissingEmbeddings(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list passages missing embeddings: %w", err)
	}

	if len(passages) == 0 {
		return nil
	}

	log.Printf("Backfilling embeddings for %d passages", len(passages))

	for _, passage := range passages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processPassage(ctx, passage); err != nil {
			// Leave the row untouched; the next poll retries it.
			log.Printf("Error backfilling passage %s: %v", passage.ID, err)
		}
	}

	return nil
}

func (w *BackfillWorker) processPassage(ctx context.Context, passage *domain.Passage) error {
	embedding, err := w.embedder.GenerateEmbedding(ctx, embeddingText(passage))
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	if err := w.source.SetEmbedding(ctx, passage.ID, embedding); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}

	return nil
}

// embeddingText is the canonical text embedded for a passage.
func embeddingText(p *domain.Passage) string {
	return fmt.Sprintf("%s. %s. %s", p.Name, p.Kind, p.Text)
}
