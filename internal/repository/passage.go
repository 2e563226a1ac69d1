package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
	"github.com/wayfarer-labs/wayfarer/internal/service"
)

// PassageRepository implements vector search and loader upserts over
// the passages table.
type PassageRepository struct {
	pool *pgxpool.Pool
}

func NewPassageRepository(pool *pgxpool.Pool) *PassageRepository {
	return &PassageRepository{pool: pool}
}

// SearchByEmbedding returns the topK nearest passages by cosine
// distance, best match first.
func (r *PassageRepository) SearchByEmbedding(ctx context.Context, embedding []float32, topK int) ([]service.ScoredPassage, error) {
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, name, kind, city, body,
		       1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM passages
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, vec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]service.ScoredPassage, 0, topK)
	for rows.Next() {
		var sp service.ScoredPassage
		if err := rows.Scan(&sp.Passage.ID, &sp.Passage.Name, &sp.Passage.Kind, &sp.Passage.City, &sp.Passage.Text, &sp.Score); err != nil {
			return nil, err
		}
		results = append(results, sp)
	}

	return results, rows.Err()
}

// Upsert inserts or replaces a passage. A nil embedding leaves the
// stored vector untouched so the backfill worker can fill it later.
func (r *PassageRepository) Upsert(ctx context.Context, p *domain.Passage) error {
	if p.Embedding != nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO passages (id, name, kind, city, body, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, kind = EXCLUDED.kind, city = EXCLUDED.city,
			    body = EXCLUDED.body, embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
			p.ID, p.Name, p.Kind, p.City, p.Text, pgvector.NewVector(p.Embedding), time.Now().UTC(),
		)
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO passages (id, name, kind, city, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, kind = EXCLUDED.kind, city = EXCLUDED.city,
		    body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Kind, p.City, p.Text, time.Now().UTC(),
	)
	return err
}

// ListMissingEmbeddings returns passages whose vector has not been
// computed yet, oldest first.
func (r *PassageRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Passage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, kind, city, body
		FROM passages
		WHERE embedding IS NULL
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passages []*domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.City, &p.Text); err != nil {
			return nil, err
		}
		passages = append(passages, &p)
	}

	return passages, rows.Err()
}

// SetEmbedding stores the computed vector for a passage.
func (r *PassageRepository) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE passages SET embedding = $1, updated_at = $2 WHERE id = $3`,
		pgvector.NewVector(embedding), time.Now().UTC(), id,
	)
	return err
}

// Count returns the number of stored passages.
func (r *PassageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM passages`).Scan(&count)
	return count, err
}
