package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMemoryType(t *testing.T) {
	for _, mt := range ValidMemoryTypes {
		assert.True(t, IsValidMemoryType(mt), "expected %q to be valid", mt)
	}
	assert.False(t, IsValidMemoryType("opinion"))
	assert.False(t, IsValidMemoryType(""))
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses {
		assert.True(t, IsValidStatus(s))
	}
	assert.False(t, IsValidStatus("archived"))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.3))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.5, Clamp01(0.5))
}

func TestReverseRelType(t *testing.T) {
	cases := map[string]string{
		RelSupersedes:   RelSupersededBy,
		RelSupersededBy: RelSupersedes,
		RelPartOf:       RelContains,
		RelContains:     RelPartOf,
		RelSupports:     RelSupportedBy,
		RelSupportedBy:  RelSupports,
		RelSimilarTo:    RelSimilarTo,
		RelRelatesTo:    RelRelatesTo,
		RelContradicts:  RelContradicts,
	}
	for fwd, rev := range cases {
		assert.Equal(t, rev, ReverseRelType(fwd))
	}
	// Unknown types reverse to themselves.
	assert.Equal(t, "depends_on", ReverseRelType("depends_on"))
}

func TestApplyDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m := &MemoryRecord{UserID: "u1", Content: "likes green tea", Importance: 1.4}
	m.ApplyDefaults(now)

	assert.Equal(t, TypeFact, m.MemoryType)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, MethodManual, m.ExtractionMethod)
	assert.Equal(t, ExpirationPermanent, m.ExpirationType)
	assert.Equal(t, 1.0, m.RelevanceScore)
	assert.Equal(t, 1.0, m.Importance, "importance clamps to 1.0")
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, now, m.UpdatedAt)
	assert.Nil(t, m.Embedding)
}

func TestApplyDefaultsPreservesSetFields(t *testing.T) {
	now := time.Now()
	created := now.Add(-48 * time.Hour)

	m := &MemoryRecord{
		UserID:         "u1",
		Content:        "prefers dark mode",
		MemoryType:     TypePreference,
		Status:         StatusConfirmed,
		RelevanceScore: 0.4,
		CreatedAt:      created,
	}
	m.ApplyDefaults(now)

	assert.Equal(t, TypePreference, m.MemoryType)
	assert.Equal(t, StatusConfirmed, m.Status)
	assert.Equal(t, 0.4, m.RelevanceScore)
	assert.Equal(t, created, m.CreatedAt)
}

func TestContextOverlap(t *testing.T) {
	m := &MemoryRecord{Contexts: []string{ContextWork, ContextTechnical}}

	assert.Equal(t, 2, m.ContextOverlap([]string{ContextWork, ContextTechnical, ContextCasual}))
	assert.Equal(t, 0, m.ContextOverlap([]string{ContextPersonal}))
	assert.Equal(t, 0, m.ContextOverlap(nil))
	assert.True(t, m.HasContext(ContextWork))
	assert.False(t, m.HasContext(ContextCreative))
}
