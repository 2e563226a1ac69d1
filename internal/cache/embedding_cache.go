// Package cache memoizes text-to-vector calls keyed by normalized query text.
package cache

import (
	"context"
	"log"
	"sync"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

// EmbeddingProvider computes a vector for a piece of text.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store is an optional persistent tier behind the in-memory map.
// Lookups are load-through; writes are best effort.
type Store interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, error)
	PutEmbedding(ctx context.Context, key string, embedding []float32) error
}

type inflightCall struct {
	done      chan struct{}
	embedding []float32
	err       error
}

// EmbeddingCache memoizes provider calls per normalized query text.
// Concurrent misses for the same key share one provider call: the first
// caller computes, the rest wait on the same result.
type EmbeddingCache struct {
	provider EmbeddingProvider
	store    Store

	mu       sync.Mutex
	entries  map[string][]float32
	inflight map[string]*inflightCall
}

// New creates an EmbeddingCache without a persistent tier.
func New(provider EmbeddingProvider) *EmbeddingCache {
	return NewWithStore(provider, nil)
}

// NewWithStore creates an EmbeddingCache backed by a persistent store.
func NewWithStore(provider EmbeddingProvider, store Store) *EmbeddingCache {
	return &EmbeddingCache{
		provider: provider,
		store:    store,
		entries:  make(map[string][]float32),
		inflight: make(map[string]*inflightCall),
	}
}

// GetOrCompute returns the cached vector for normalizedText, computing
// it via the provider on a miss. Provider failures propagate and leave
// nothing cached.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, normalizedText string) ([]float32, error) {
	if normalizedText == "" {
		return nil, domain.ErrEmptyQuery
	}

	c.mu.Lock()
	if embedding, ok := c.entries[normalizedText]; ok {
		c.mu.Unlock()
		return embedding, nil
	}
	if call, ok := c.inflight[normalizedText]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.embedding, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[normalizedText] = call
	c.mu.Unlock()

	embedding, err := c.compute(ctx, normalizedText)

	c.mu.Lock()
	delete(c.inflight, normalizedText)
	if err == nil {
		c.entries[normalizedText] = embedding
	}
	c.mu.Unlock()

	call.embedding = embedding
	call.err = err
	close(call.done)

	return embedding, err
}

// Len reports the number of resident entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *EmbeddingCache) compute(ctx context.Context, key string) ([]float32, error) {
	if c.store != nil {
		embedding, err := c.store.GetEmbedding(ctx, key)
		if err != nil {
			log.Printf("embedding cache: store lookup failed for %q: %v", key, err)
		} else if embedding != nil {
			return embedding, nil
		}
	}

	embedding, err := c.provider.GenerateEmbedding(ctx, key)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingProvider, "embedding provider call failed", err)
	}

	if c.store != nil {
		if err := c.store.PutEmbedding(ctx, key, embedding); err != nil {
			log.Printf("embedding cache: store write failed for %q: %v", key, err)
		}
	}

	return embedding, nil
}
