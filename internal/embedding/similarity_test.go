package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	opposite := []float32{-1, 0, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity(a, opposite), 1e-9)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestSimilarityBounds(t *testing.T) {
	a := []float32{1, 0}
	opposite := []float32{-1, 0}

	// Normalized range: identical pairs score 1, opposite pairs score 0.
	assert.InDelta(t, 1.0, Similarity(a, a), 1e-9)
	assert.InDelta(t, 0.0, Similarity(a, opposite), 1e-9)

	s := Similarity([]float32{1, 2, 3}, []float32{3, 1, 2})
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestSimilarityZeroVectorScoresZero(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 2, 3}

	assert.Equal(t, 0.0, Similarity(zero, other))
	assert.Equal(t, 0.0, Similarity(other, zero))
	assert.Equal(t, 0.0, Similarity(zero, zero))
}

func TestFindMostSimilarOrdering(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := [][]float32{
		{0, 1, 0},     // orthogonal
		{1, 0, 0},     // identical
		{0.9, 0.1, 0}, // close
		{-1, 0, 0},    // opposite
	}

	ranked := FindMostSimilar(query, candidates, 0)
	require.Len(t, ranked, 4)

	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 2, ranked[1].Index)
	assert.Equal(t, 0, ranked[2].Index)
	assert.Equal(t, 3, ranked[3].Index)

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Similarity, ranked[i].Similarity)
	}
}

func TestFindMostSimilarStableTies(t *testing.T) {
	query := []float32{1, 0}
	// Both candidates are identical, so their similarities tie exactly.
	candidates := [][]float32{{0, 1}, {0, 1}, {1, 0}}

	first := FindMostSimilar(query, candidates, 0)
	second := FindMostSimilar(query, candidates, 0)

	assert.Equal(t, first, second, "ranking must be deterministic")
	assert.Equal(t, 2, first[0].Index)
	assert.Equal(t, 0, first[1].Index, "ties keep input order")
	assert.Equal(t, 1, first[2].Index)
}

func TestFindMostSimilarTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	ranked := FindMostSimilar(query, candidates, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 0, ranked[0].Index)
}
