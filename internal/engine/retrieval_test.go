package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/pkg/types"
)

func TestRelevantRanksByWeightedScore(t *testing.T) {
	gen := &stubGenerator{vectors: map[string][]float32{
		"coffee": {1, 0, 0},
	}}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	// Same similarity to the query; status and importance decide the order.
	confirmed := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "loves espresso"
		m.Status = types.StatusConfirmed
		m.Importance = 0.8
	})
	pending := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "drinks filter coffee"
		m.Importance = 0.8
	})
	weak := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "tried a new cafe"
		m.Importance = 0.4
	})

	results, err := svc.Relevant(ctx, "user-1", "coffee", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, confirmed.ID, results[0].Memory.ID)
	assert.Equal(t, pending.ID, results[1].Memory.ID)
	assert.Equal(t, weak.ID, results[2].Memory.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestRelevantExcludesRejectedKeepsSupersededDampened(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Status = types.StatusRejected
	})
	superseded := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.SupersededBy = "other"
		m.RelevanceScore = 0.1
	})
	kept := seedMemory(t, store, "user-1", nil)

	results, err := svc.Relevant(ctx, "user-1", "anything", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Soft-deleted memories still surface, ranked down by their forced-low
	// relevance. Rejected memories never do.
	assert.Equal(t, kept.ID, results[0].Memory.ID)
	assert.Equal(t, superseded.ID, results[1].Memory.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRelevantFiltersByImportance(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Importance = 0.2
	})

	results, err := svc.Relevant(ctx, "user-1", "anything", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = svc.Relevant(ctx, "user-1", "anything", RetrieveOptions{MinImportance: 0.1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRelevantContextBoost(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	tagged := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "reviews pull requests daily"
		m.Contexts = []string{types.ContextWork, types.ContextTechnical}
	})
	plain := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "enjoys long walks"
	})

	results, err := svc.Relevant(ctx, "user-1", "query", RetrieveOptions{
		ActiveContexts: []string{types.ContextWork, types.ContextTechnical},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, tagged.ID, results[0].Memory.ID)
	assert.Equal(t, plain.ID, results[1].Memory.ID)
	// Two matching contexts boost the score by 30 percent.
	assert.InDelta(t, 1.3, results[0].Score/results[1].Score, 1e-9)
}

func TestRelevantRecordsAccess(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	seeded := seedMemory(t, store, "user-1", nil)

	results, err := svc.Relevant(ctx, "user-1", "query", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Memory.AccessCount)

	stored, err := store.Get(ctx, "user-1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AccessCount)
	assert.NotNil(t, stored.LastAccessed)
}

func TestRelevantLimit(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})

	for i := 0; i < 8; i++ {
		seedMemory(t, store, "user-1", nil)
	}

	results, err := svc.Relevant(context.Background(), "user-1", "query", RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 5)

	results, err = svc.Relevant(context.Background(), "user-1", "query", RetrieveOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRelevantKeywordFallbackWhenEmbedderDown(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{fail: true})
	ctx := context.Background()

	match := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "uses vim for editing"
		m.Embedding = nil
	})
	seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "allergic to peanuts"
		m.Embedding = nil
	})

	results, err := svc.Relevant(ctx, "user-1", "vim", RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, match.ID, results[0].Memory.ID)
	assert.Equal(t, 1.0, results[0].Similarity)
}

func TestKeywordRelevance(t *testing.T) {
	mem := &types.MemoryRecord{
		Content: "Works at Acme as a backend engineer",
		Tags:    []string{"career"},
	}

	assert.Equal(t, 1.0, keywordRelevance("works at acme", mem))
	assert.InDelta(t, 0.5, keywordRelevance("backend frontend", mem), 1e-9)
	assert.InDelta(t, 1.0, keywordRelevance("career", mem), 1e-9)
	assert.Zero(t, keywordRelevance("unrelated words here", mem))
	assert.Zero(t, keywordRelevance("", mem))
}
