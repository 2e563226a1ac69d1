package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepository is the persistent tier of the embedding
// cache. Entries have no expiry; writes are last-write-wins.
type EmbeddingCacheRepository struct {
	pool *pgxpool.Pool
}

func NewEmbeddingCacheRepository(pool *pgxpool.Pool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{pool: pool}
}

// GetEmbedding returns the stored vector for the normalized query text,
// or nil when no entry exists.
func (r *EmbeddingCacheRepository) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE query_text = $1`, key,
	).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vec.Slice(), nil
}

// PutEmbedding upserts the vector for the normalized query text.
func (r *EmbeddingCacheRepository) PutEmbedding(ctx context.Context, key string, embedding []float32) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO embedding_cache (query_text, embedding, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (query_text) DO UPDATE SET embedding = EXCLUDED.embedding`,
		key, pgvector.NewVector(embedding), time.Now().UTC(),
	)
	return err
}
