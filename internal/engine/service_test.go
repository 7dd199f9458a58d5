package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/internal/storage/sqlite"
	"github.com/engramdb/engram/pkg/types"
)

// stubGenerator returns canned vectors per text so tests can place
// memories at exact similarities. Unknown texts get a default vector.
type stubGenerator struct {
	vectors map[string][]float32
	fail    bool
}

func (g *stubGenerator) Embed(_ context.Context, text string) ([]float32, error) {
	if g.fail {
		return nil, errors.New("embedder down")
	}
	if v, ok := g.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (g *stubGenerator) GetModel() string { return "stub" }

// Vectors at known normalized similarities to the default (1, 0, 0).
// Similarity is (cosine+1)/2, so cosine 0.8 lands at 0.9 and so on.
func vecAt(cosine float64) []float32 {
	other := 1 - cosine*cosine
	if other < 0 {
		other = 0
	}
	return []float32{float32(cosine), float32(math.Sqrt(other)), 0}
}

func newTestService(t *testing.T, gen *stubGenerator) (*Service, storage.MemoryStore) {
	t.Helper()

	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider, err := embedding.NewProvider(gen, embedding.Options{Dimension: 3, CacheSize: 64})
	require.NoError(t, err)

	return NewService(store, provider, nil, config.Default().Tuning), store
}

func seedMemory(t *testing.T, store storage.MemoryStore, userID string, mutate func(*types.MemoryRecord)) *types.MemoryRecord {
	t.Helper()

	mem := &types.MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Content:    "seed content " + uuid.NewString(),
		MemoryType: types.TypeFact,
		Importance: 0.5,
		Confidence: 0.8,
		Embedding:  []float32{1, 0, 0},
	}
	mem.ApplyDefaults(time.Now().UTC())
	if mutate != nil {
		mutate(mem)
	}
	require.NoError(t, store.Create(context.Background(), mem))
	return mem
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	mem, err := svc.Create(ctx, "user-1", CreateRequest{Content: "drinks espresso every morning"})
	require.NoError(t, err)

	assert.NotEmpty(t, mem.ID)
	assert.Equal(t, types.TypeFact, mem.MemoryType)
	assert.Equal(t, types.StatusPending, mem.Status)
	assert.Equal(t, types.MethodManual, mem.ExtractionMethod)
	assert.Equal(t, 0.5, mem.Importance)
	assert.Equal(t, 0.8, mem.Confidence)
	assert.Equal(t, 1.0, mem.RelevanceScore)
	assert.Equal(t, types.ExpirationPermanent, mem.ExpirationType)
	assert.Len(t, mem.Embedding, 3)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CreateRequest{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = svc.Create(ctx, "user-1", CreateRequest{Content: "x", MemoryType: "bogus"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCreateEnforcesHardLimit(t *testing.T) {
	gen := &stubGenerator{}
	svc, store := newTestService(t, gen)
	svc.tuning.SoftLimit = 2
	svc.tuning.HardLimit = 3
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedMemory(t, store, "user-1", nil)
	}

	_, err := svc.Create(ctx, "user-1", CreateRequest{Content: "one too many"})
	assert.ErrorIs(t, err, storage.ErrCapacityExceeded)

	// Other users are unaffected.
	_, err = svc.Create(ctx, "user-2", CreateRequest{Content: "fresh collection"})
	assert.NoError(t, err)
}

func TestCreateExactDuplicateReinforces(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	existing := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "prefers dark roast"
		m.RelevanceScore = 0.5
	})

	mem, err := svc.Create(ctx, "user-1", CreateRequest{Content: "prefers dark roast"})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, mem.ID)
	assert.InDelta(t, 0.6, mem.RelevanceScore, 1e-9)
	assert.NotNil(t, mem.LastReinforced)

	count, err := store.CountForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRecentSimilarReinforces(t *testing.T) {
	gen := &stubGenerator{vectors: map[string][]float32{
		"likes strong coffee": vecAt(0.85), // similarity 0.925 to the seed
	}}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	existing := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "enjoys strong coffee"
		m.RelevanceScore = 0.4
	})

	mem, err := svc.Create(ctx, "user-1", CreateRequest{Content: "likes strong coffee"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, mem.ID)
	assert.InDelta(t, 0.5, mem.RelevanceScore, 1e-9)
}

func TestCreateOldSimilarIsNotDuplicate(t *testing.T) {
	gen := &stubGenerator{vectors: map[string][]float32{
		"likes strong coffee": vecAt(0.85),
	}}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	old := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "enjoys strong coffee"
		m.CreatedAt = time.Now().UTC().AddDate(0, 0, -30)
	})

	mem, err := svc.Create(ctx, "user-1", CreateRequest{Content: "likes strong coffee"})
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, mem.ID)

	count, err := store.CountForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCreateWithoutEmbedderStillStores(t *testing.T) {
	svc, _ := newTestService(t, &stubGenerator{fail: true})
	ctx := context.Background()

	mem, err := svc.Create(ctx, "user-1", CreateRequest{Content: "works offline"})
	require.NoError(t, err)
	assert.False(t, mem.HasEmbedding())
}

func TestGetRecordsAccess(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	seeded := seedMemory(t, store, "user-1", nil)

	mem, err := svc.Get(ctx, "user-1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, mem.AccessCount)
	assert.NotNil(t, mem.LastAccessed)

	_, err = svc.Get(ctx, "user-1", seeded.ID)
	require.NoError(t, err)

	stored, err := store.Get(ctx, "user-1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AccessCount)
}

func TestGetMissingMemory(t *testing.T) {
	svc, _ := newTestService(t, &stubGenerator{})

	_, err := svc.Get(context.Background(), "user-1", uuid.NewString())
	assert.True(t, IsNotFound(err))
}

func TestUpdateRegeneratesEmbeddingOnContentChange(t *testing.T) {
	gen := &stubGenerator{vectors: map[string][]float32{
		"new content": {0, 1, 0},
	}}
	svc, store := newTestService(t, gen)
	ctx := context.Background()

	seeded := seedMemory(t, store, "user-1", nil)

	newContent := "new content"
	importance := 0.9
	mem, err := svc.Update(ctx, "user-1", seeded.ID, UpdateRequest{
		Content:    &newContent,
		Importance: &importance,
	})
	require.NoError(t, err)

	assert.Equal(t, "new content", mem.Content)
	assert.Equal(t, []float32{0, 1, 0}, mem.Embedding)
	assert.Equal(t, 0.9, mem.Importance)

	stored, err := store.Get(ctx, "user-1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "new content", stored.Content)
	assert.Equal(t, []float32{0, 1, 0}, stored.Embedding)
}

func TestUpdateRejectsEmptyContent(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	seeded := seedMemory(t, store, "user-1", nil)

	empty := ""
	_, err := svc.Update(context.Background(), "user-1", seeded.ID, UpdateRequest{Content: &empty})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPendingReturnsNewestFirst(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		mem := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
			m.Content = fmt.Sprintf("pending fact %d", i)
			m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
		ids = append(ids, mem.ID)
	}
	seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Status = types.StatusConfirmed
	})

	pending, err := svc.Pending(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[2], pending[0].ID)
	assert.Equal(t, ids[1], pending[1].ID)
}

func TestSummaryLimitStatus(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	svc.tuning.SoftLimit = 4
	svc.tuning.HardLimit = 6
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		seedMemory(t, store, "user-1", nil)
	}

	summary, err := svc.Summary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, LimitHealthy, summary.Limit.Status)
	assert.InDelta(t, 50.0, summary.Limit.PercentageUsed, 1e-9)
	assert.Equal(t, 2, summary.Stats.Total)

	for i := 0; i < 2; i++ {
		seedMemory(t, store, "user-1", nil)
	}
	summary, err = svc.Summary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, LimitWarning, summary.Limit.Status)

	for i := 0; i < 2; i++ {
		seedMemory(t, store, "user-1", nil)
	}
	summary, err = svc.Summary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, LimitExceeded, summary.Limit.Status)
	assert.NotEmpty(t, summary.Limit.Message)
}

func TestCleanupKeepsTopRankedAndImportant(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	// Two high-scoring memories stay in the keep window; of the rest, only
	// the unimportant one is removed.
	keeperA := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Importance = 0.9
		m.AccessCount = 10
	})
	keeperB := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Importance = 0.8
		m.AccessCount = 8
	})
	important := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Importance = 0.7
		m.AccessCount = 0
	})
	trivia := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Importance = 0.1
		m.AccessCount = 0
	})

	deleted, err := svc.Cleanup(ctx, "user-1", 2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	for _, id := range []string{keeperA.ID, keeperB.ID, important.ID} {
		_, err := store.Get(ctx, "user-1", id)
		assert.NoError(t, err)
	}
	_, err = store.Get(ctx, "user-1", trivia.ID)
	assert.True(t, IsNotFound(err))
}

func TestCleanupNoopUnderKeepCount(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})

	seedMemory(t, store, "user-1", func(m *types.MemoryRecord) { m.Importance = 0.05 })

	deleted, err := svc.Cleanup(context.Background(), "user-1", 500, 0.3)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestReinforceCapsAtOne(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	ctx := context.Background()

	seeded := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.RelevanceScore = 0.95
	})

	mem, err := svc.Reinforce(ctx, "user-1", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mem.RelevanceScore)
	assert.Equal(t, 1, mem.AccessCount)
}
