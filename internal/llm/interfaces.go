// Package llm provides the LLM provider clients used by Engram for memory
// extraction and embedding generation. All providers wrap their network
// calls with circuit breaker protection and a shared rate limiter.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Extraction prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
