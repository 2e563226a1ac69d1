//go:build integration

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-labs/wayfarer/internal/testutil"
)

func newTestClient(ctx context.Context, t *testing.T) *Client {
	nc := testutil.NewNeo4jContainer(ctx, t)
	t.Cleanup(func() { nc.Terminate(ctx) })

	client, err := NewClient(ctx, Config{
		URI:      nc.URI(),
		User:     nc.User,
		Password: nc.Password,
		Database: "neo4j",
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(ctx) })

	return client
}

func TestClient_LoadAndFetch(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(ctx, t)

	require.NoError(t, client.EnsureConstraints(ctx))

	entities := []Entity{
		{ID: "city_hanoi", Name: "Hanoi", Type: "City", City: "Hanoi", Description: "Capital of Vietnam."},
		{ID: "attraction_hoankiem", Name: "Hoan Kiem Lake", Type: "Attraction", City: "Hanoi", Description: "Scenic lake."},
		{ID: "city_ninhbinh", Name: "Ninh Binh", Type: "City", Description: "Limestone karsts."},
	}
	require.NoError(t, client.UpsertEntities(ctx, entities))

	relations := []Relation{
		{SourceID: "city_hanoi", TargetID: "attraction_hoankiem", Type: "has_attraction"},
		{SourceID: "city_hanoi", TargetID: "city_ninhbinh", Type: "near"},
	}
	require.NoError(t, client.UpsertRelations(ctx, relations))

	t.Run("fetches connected facts", func(t *testing.T) {
		facts, err := client.FetchFacts(ctx, []string{"city_hanoi"})
		require.NoError(t, err)
		require.NotEmpty(t, facts)

		targets := make(map[string]bool)
		for _, fact := range facts {
			assert.Equal(t, "city_hanoi", fact.SourceID)
			targets[fact.TargetID] = true
		}
		assert.True(t, targets["attraction_hoankiem"])
		assert.True(t, targets["city_ninhbinh"])
	})

	t.Run("unknown entity yields no facts", func(t *testing.T) {
		facts, err := client.FetchFacts(ctx, []string{"city_nowhere"})
		require.NoError(t, err)
		assert.Empty(t, facts)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		require.NoError(t, client.UpsertEntities(ctx, entities))
		require.NoError(t, client.UpsertRelations(ctx, relations))

		facts, err := client.FetchFacts(ctx, []string{"city_hanoi"})
		require.NoError(t, err)

		seen := make(map[string]int)
		for _, fact := range facts {
			seen[fact.SourceID+fact.Relation+fact.TargetID]++
		}
		for key, count := range seen {
			assert.Equal(t, 1, count, "duplicate fact after re-load: %s", key)
		}
	})
}
