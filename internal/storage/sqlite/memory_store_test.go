package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestMemory(userID, content string) *types.MemoryRecord {
	now := time.Now().UTC().Truncate(time.Second)
	m := &types.MemoryRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Content:    content,
		MemoryType: types.TypeFact,
		Importance: 0.7,
		Confidence: 0.9,
		Embedding:  []float32{0.1, 0.2, 0.3},
		Tags:       []string{"test"},
		Contexts:   []string{types.ContextWork},
	}
	m.ApplyDefaults(now)
	return m
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "prefers tabs over spaces")
	require.NoError(t, store.Create(ctx, m))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)

	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, types.TypeFact, got.MemoryType)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, []string{"test"}, got.Tags)
	assert.Equal(t, []string{types.ContextWork}, got.Contexts)
	assert.Equal(t, 1.0, got.RelevanceScore)
}

func TestGetWrongUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "works remotely")
	require.NoError(t, store.Create(ctx, m))

	_, err := store.Get(ctx, "u2", m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Create(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &types.MemoryRecord{UserID: "u1", Content: "x"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &types.MemoryRecord{ID: "id", Content: "x"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &types.MemoryRecord{ID: "id", UserID: "u1"}), storage.ErrInvalidInput)
}

func TestUpdatePersistsChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "lives in Berlin")
	require.NoError(t, store.Create(ctx, m))

	m.Content = "lives in Munich"
	m.Status = types.StatusCorrected
	m.Tags = []string{"location", "city"}
	m.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Update(ctx, m))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "lives in Munich", got.Content)
	assert.Equal(t, types.StatusCorrected, got.Status)
	assert.Equal(t, []string{"location", "city"}, got.Tags)
}

func TestUpdateMissingMemory(t *testing.T) {
	store := newTestStore(t)
	m := newTestMemory("u1", "never stored")
	assert.ErrorIs(t, store.Update(context.Background(), m), storage.ErrNotFound)
}

func TestDeleteAndDeleteMany(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestMemory("u1", "memory a")
	b := newTestMemory("u1", "memory b")
	c := newTestMemory("u1", "memory c")
	for _, m := range []*types.MemoryRecord{a, b, c} {
		require.NoError(t, store.Create(ctx, m))
	}

	require.NoError(t, store.Delete(ctx, "u1", a.ID))
	assert.ErrorIs(t, store.Delete(ctx, "u1", a.ID), storage.ErrNotFound)

	deleted, err := store.DeleteMany(ctx, "u1", []string{b.ID, c.ID, "missing-id"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := store.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListFiltersAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := newTestMemory("u1", fmt.Sprintf("fact number %d", i))
		require.NoError(t, store.Create(ctx, m))
	}
	pref := newTestMemory("u1", "prefers short meetings")
	pref.MemoryType = types.TypePreference
	pref.Status = types.StatusConfirmed
	require.NoError(t, store.Create(ctx, pref))

	other := newTestMemory("u2", "someone else's memory")
	require.NoError(t, store.Create(ctx, other))

	page, err := store.List(ctx, "u1", storage.ListOptions{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.Items, 4)
	assert.True(t, page.HasMore)

	page2, err := store.List(ctx, "u1", storage.ListOptions{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.False(t, page2.HasMore)

	prefs, err := store.List(ctx, "u1", storage.ListOptions{MemoryType: types.TypePreference})
	require.NoError(t, err)
	require.Len(t, prefs.Items, 1)
	assert.Equal(t, pref.ID, prefs.Items[0].ID)

	confirmed, err := store.List(ctx, "u1", storage.ListOptions{Status: types.StatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, confirmed.Items, 1)

	work, err := store.List(ctx, "u1", storage.ListOptions{Context: types.ContextWork})
	require.NoError(t, err)
	assert.Equal(t, 6, work.Total)
}

func TestListSearchFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	golang := newTestMemory("u1", "Writes Go services at work")
	golang.Tags = []string{"go", "career"}
	golang.Importance = 0.9
	golang.Confidence = 0.95
	require.NoError(t, store.Create(ctx, golang))

	cooking := newTestMemory("u1", "enjoys cooking thai food")
	cooking.Tags = []string{"hobby"}
	cooking.Importance = 0.4
	cooking.Confidence = 0.6
	require.NoError(t, store.Create(ctx, cooking))

	byQuery, err := store.List(ctx, "u1", storage.ListOptions{Query: "go services"})
	require.NoError(t, err)
	require.Len(t, byQuery.Items, 1)
	assert.Equal(t, golang.ID, byQuery.Items[0].ID)

	byTag, err := store.List(ctx, "u1", storage.ListOptions{Tags: []string{"hobby", "travel"}})
	require.NoError(t, err)
	require.Len(t, byTag.Items, 1)
	assert.Equal(t, cooking.ID, byTag.Items[0].ID)

	byImportance, err := store.List(ctx, "u1", storage.ListOptions{MinImportance: 0.5})
	require.NoError(t, err)
	require.Len(t, byImportance.Items, 1)
	assert.Equal(t, golang.ID, byImportance.Items[0].ID)

	byConfidence, err := store.List(ctx, "u1", storage.ListOptions{MinConfidence: 0.9})
	require.NoError(t, err)
	require.Len(t, byConfidence.Items, 1)

	none, err := store.List(ctx, "u1", storage.ListOptions{Query: "snowboarding"})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Zero(t, none.Total)
}

func TestListExcludesSuperseded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "old fragment")
	require.NoError(t, store.Create(ctx, m))
	require.NoError(t, store.MarkSuperseded(ctx, "u1", m.ID, "consolidated-id", 0.1))

	page, err := store.List(ctx, "u1", storage.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	all, err := store.List(ctx, "u1", storage.ListOptions{IncludeSuperseded: true})
	require.NoError(t, err)
	require.Len(t, all.Items, 1)
	assert.Equal(t, "consolidated-id", all.Items[0].SupersededBy)
	assert.Equal(t, 0.1, all.Items[0].RelevanceScore)

	count, err := store.CountForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "superseded memories do not count toward capacity")
}

func TestRecordAccessIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "drinks espresso")
	require.NoError(t, store.Create(ctx, m))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordAccess(ctx, "u1", m.ID, at))
	require.NoError(t, store.RecordAccess(ctx, "u1", m.ID, at))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	require.NotNil(t, got.LastAccessed)

	assert.ErrorIs(t, store.RecordAccess(ctx, "u1", "missing", at), storage.ErrNotFound)
}

func TestReinforce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "studies Japanese")
	m.RelevanceScore = 0.5
	require.NoError(t, store.Create(ctx, m))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Reinforce(ctx, "u1", m.ID, 0.6, at))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.RelevanceScore)
	assert.Equal(t, 1, got.AccessCount)
	require.NotNil(t, got.LastReinforced)
}

func TestAppendRelationship(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "plays chess")
	require.NoError(t, store.Create(ctx, m))

	rel := types.Relationship{
		TargetID:  "other-id",
		Type:      types.RelRelatesTo,
		Strength:  0.8,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.AppendRelationship(ctx, "u1", m.ID, rel))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "other-id", got.Relationships[0].TargetID)
	assert.Equal(t, types.RelRelatesTo, got.Relationships[0].Type)
}

func TestApplyVerification(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "uses emacs")
	require.NoError(t, store.Create(ctx, m))

	at := time.Now().UTC().Truncate(time.Second)
	update := storage.VerificationUpdate{
		Status:         types.StatusCorrected,
		Confidence:     0.9,
		RelevanceScore: 1.0,
		VerifiedAt:     at,
		Content:        "uses neovim",
		Embedding:      []float32{0.4, 0.5, 0.6},
		Entry: types.VerificationEntry{
			Timestamp:       at,
			Action:          "corrected",
			PreviousContent: "uses emacs",
		},
	}
	require.NoError(t, store.ApplyVerification(ctx, "u1", m.ID, update))

	got, err := store.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCorrected, got.Status)
	assert.Equal(t, "uses neovim", got.Content)
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, got.Embedding)
	assert.Equal(t, 0.9, got.Confidence)
	require.NotNil(t, got.VerifiedAt)
	require.Len(t, got.VerificationHistory, 1)
	assert.Equal(t, "uses emacs", got.VerificationHistory[0].PreviousContent)
}

func TestFlagConflictMarksBothSides(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestMemory("u1", "loves spicy food")
	b := newTestMemory("u1", "hates spicy food")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.FlagConflict(ctx, "u1", a.ID, b.ID, at))
	// Re-flagging the same pair must not duplicate IDs.
	require.NoError(t, store.FlagConflict(ctx, "u1", a.ID, b.ID, at))

	gotA, err := store.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	gotB, err := store.Get(ctx, "u1", b.ID)
	require.NoError(t, err)

	assert.True(t, gotA.ConflictDetected)
	assert.True(t, gotB.ConflictDetected)
	assert.Equal(t, []string{b.ID}, gotA.ConflictIDs)
	assert.Equal(t, []string{a.ID}, gotB.ConflictIDs)
	require.NotNil(t, gotA.LastConflictCheck)
}

func TestFindByContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newTestMemory("u1", "allergic to peanuts")
	require.NoError(t, store.Create(ctx, m))

	found, err := store.FindByContent(ctx, "u1", "allergic to peanuts")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, m.ID, found[0].ID)

	none, err := store.FindByContent(ctx, "u1", "allergic to shellfish")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fact := newTestMemory("u1", "fact one")
	pref := newTestMemory("u1", "pref one")
	pref.MemoryType = types.TypePreference
	pref.Status = types.StatusConfirmed
	private := newTestMemory("u1", "private one")
	private.IsPrivate = true

	for _, m := range []*types.MemoryRecord{fact, pref, private} {
		require.NoError(t, store.Create(ctx, m))
	}
	require.NoError(t, store.MarkSuperseded(ctx, "u1", fact.ID, "x", 0.1))

	stats, err := store.Summary(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[types.TypeFact])
	assert.Equal(t, 1, stats.ByType[types.TypePreference])
	assert.Equal(t, 1, stats.ByStatus[types.StatusConfirmed])
	assert.Equal(t, 1, stats.Superseded)
	assert.Equal(t, 1, stats.Private)
}
