package embedding

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors in
// [-1, 1]. Mismatched lengths or a zero-magnitude vector return 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity normalizes cosine similarity into [0, 1] so downstream
// scoring can multiply it with other [0, 1] factors. Zero-magnitude
// vectors score 0.0, not 0.5.
func Similarity(a, b []float32) float64 {
	if isZero(a) || isZero(b) {
		return 0
	}
	s := (CosineSimilarity(a, b) + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Scored pairs a candidate index with its similarity to a query.
type Scored struct {
	Index      int
	Similarity float64
}

// FindMostSimilar ranks candidates against the query by descending
// similarity. Ties keep the candidates' original order, so repeated calls
// with the same inputs return the same ranking.
func FindMostSimilar(query []float32, candidates [][]float32, topK int) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		scored = append(scored, Scored{Index: i, Similarity: Similarity(query, c)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
