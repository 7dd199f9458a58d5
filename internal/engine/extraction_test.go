package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/pkg/types"
)

// stubExtractor returns canned candidates and records the conversation
// it was asked about.
type stubExtractor struct {
	candidates  []types.CandidateMemory
	err         error
	gotMessages []types.ConversationMessage
}

func (e *stubExtractor) Extract(_ context.Context, messages []types.ConversationMessage) ([]types.CandidateMemory, error) {
	e.gotMessages = messages
	return e.candidates, e.err
}

func TestExtractFromConversation(t *testing.T) {
	extractor := &stubExtractor{candidates: []types.CandidateMemory{
		{
			MemoryType: types.TypePreference,
			Content:    "prefers concise answers",
			Importance: 0.6,
			Confidence: 0.9,
			Tags:       []string{"communication"},
			Contexts:   []string{types.ContextCasual},
		},
		{
			MemoryType: types.TypeFact,
			Content:    "lives in Lisbon",
			Importance: 0.8,
			Confidence: 0.95,
		},
	}}

	gen := &stubGenerator{vectors: map[string][]float32{
		"prefers concise answers": {1, 0, 0},
		"lives in Lisbon":         {0, 1, 0},
	}}
	svc, store := newTestService(t, gen)
	svc.extractor = extractor
	ctx := context.Background()

	messages := []types.ConversationMessage{
		{Role: "user", Content: "keep it short please, I'm in Lisbon"},
	}
	result, err := svc.ExtractFromConversation(ctx, "user-1", "session-7", messages)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Candidates)
	require.Len(t, result.Created, 2)
	assert.Empty(t, result.Reinforced)
	assert.Equal(t, messages, extractor.gotMessages)

	assert.Equal(t, []float32{1, 0, 0}, result.Created[0].Embedding)
	assert.Equal(t, []float32{0, 1, 0}, result.Created[1].Embedding)

	for _, mem := range result.Created {
		assert.Equal(t, types.StatusPending, mem.Status)
		assert.Equal(t, types.MethodAIExtraction, mem.ExtractionMethod)
		assert.Equal(t, "session-7", mem.SourceSessionID)
		assert.Equal(t, 1.0, mem.RelevanceScore)
		assert.NotEmpty(t, mem.TimeContext)
	}

	count, err := store.CountForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExtractFromConversationReinforcesDuplicates(t *testing.T) {
	extractor := &stubExtractor{candidates: []types.CandidateMemory{
		{MemoryType: types.TypeFact, Content: "lives in Lisbon"},
	}}

	svc, store := newTestService(t, &stubGenerator{})
	svc.extractor = extractor
	ctx := context.Background()

	existing := seedMemory(t, store, "user-1", func(m *types.MemoryRecord) {
		m.Content = "lives in Lisbon"
		m.RelevanceScore = 0.5
	})

	result, err := svc.ExtractFromConversation(ctx, "user-1", "session-8", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Created)
	require.Len(t, result.Reinforced, 1)
	assert.Equal(t, existing.ID, result.Reinforced[0].ID)
	assert.InDelta(t, 0.6, result.Reinforced[0].RelevanceScore, 1e-9)
}

func TestExtractFromConversationErrors(t *testing.T) {
	svc, _ := newTestService(t, &stubGenerator{})

	_, err := svc.ExtractFromConversation(context.Background(), "user-1", "", nil)
	assert.Error(t, err) // no extractor configured
}

func TestExtractFromConversationSwallowsExtractorFailure(t *testing.T) {
	svc, store := newTestService(t, &stubGenerator{})
	svc.extractor = &stubExtractor{err: errors.New("model unavailable")}
	ctx := context.Background()

	// Extraction is background enrichment; an upstream failure yields an
	// empty result instead of an error.
	result, err := svc.ExtractFromConversation(ctx, "user-1", "", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Candidates)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Reinforced)
	assert.Zero(t, result.Failed)

	count, err := store.CountForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExtractFromConversationBatchEmbedFailure(t *testing.T) {
	extractor := &stubExtractor{candidates: []types.CandidateMemory{
		{MemoryType: types.TypeFact, Content: "cycles to the office"},
		{MemoryType: types.TypeFact, Content: "plays chess on weekends"},
	}}

	svc, _ := newTestService(t, &stubGenerator{fail: true})
	svc.extractor = extractor

	// When the batched embedding round trip fails, candidates are still
	// stored and stay reachable through keyword retrieval.
	result, err := svc.ExtractFromConversation(context.Background(), "user-1", "", nil)
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	for _, mem := range result.Created {
		assert.Empty(t, mem.Embedding)
	}
}

func TestExtractFromConversationCountsFailures(t *testing.T) {
	extractor := &stubExtractor{candidates: []types.CandidateMemory{
		{MemoryType: types.TypeFact, Content: "fits under the limit"},
		{MemoryType: types.TypeFact, Content: "does not fit anymore"},
	}}

	gen := &stubGenerator{vectors: map[string][]float32{
		"fits under the limit": {0, 1, 0},
		"does not fit anymore": {0, 0, 1},
	}}
	svc, store := newTestService(t, gen)
	svc.extractor = extractor
	svc.tuning.SoftLimit = 1
	svc.tuning.HardLimit = 2
	ctx := context.Background()

	seedMemory(t, store, "user-1", nil)

	result, err := svc.ExtractFromConversation(ctx, "user-1", "", nil)
	require.NoError(t, err)

	assert.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Failed)
}

func TestTimeContextFor(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{6, "morning_routine"},
		{9, "work_hours"},
		{16, "work_hours"},
		{18, "evening"},
		{23, "night"},
		{3, "night"},
	}
	for _, tc := range cases {
		at := time.Date(2026, 8, 30, tc.hour, 0, 0, 0, time.UTC)
		assert.Equal(t, tc.want, timeContextFor(at), "hour %d", tc.hour)
	}
}
