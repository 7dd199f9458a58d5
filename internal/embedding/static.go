package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// StaticEmbedder is a deterministic offline embedder. It hashes character
// trigrams into a fixed-size vector and L2-normalizes the result, so the
// same text always maps to the same unit vector and overlapping texts land
// near each other. It backs tests and deployments with no LLM available.
type StaticEmbedder struct {
	dimension int
}

// NewStaticEmbedder creates a deterministic embedder with the given
// dimension (default: 384).
func NewStaticEmbedder(dimension int) *StaticEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &StaticEmbedder{dimension: dimension}
}

// Embed maps text to a deterministic unit vector.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dimension)
	if text == "" {
		return vec, nil
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		end := i + 3
		if end > len(runes) {
			end = len(runes)
		}
		h := fnv.New32a()
		h.Write([]byte(string(runes[i:end])))
		vec[h.Sum32()%uint32(s.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}

	return vec, nil
}

// GetModel identifies the embedder.
func (s *StaticEmbedder) GetModel() string {
	return "static-trigram"
}
