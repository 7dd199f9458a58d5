// Package embedding provides the embedding provider used for semantic
// retrieval: single and batch embedding with an LRU cache over repeated
// texts, plus the similarity math retrieval and maintenance jobs share.
package embedding

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/engramdb/engram/internal/llm"
)

// Provider generates embeddings through an llm.EmbeddingGenerator, caching
// results by exact text so repeated extraction and dedup passes do not
// re-embed identical content.
type Provider struct {
	generator llm.EmbeddingGenerator
	cache     *lru.Cache[string, []float32]
	dimension int
	parallel  int
}

// Options configures a Provider.
type Options struct {
	// Dimension is the expected vector length (default: 384). Vectors of
	// any other length are rejected.
	Dimension int

	// CacheSize is the number of text-to-vector entries kept (default: 2048).
	CacheSize int

	// BatchParallel bounds concurrent requests in EmbedBatch (default: 4).
	BatchParallel int
}

// NewProvider creates a Provider over the given generator.
func NewProvider(generator llm.EmbeddingGenerator, opts Options) (*Provider, error) {
	if opts.Dimension <= 0 {
		opts.Dimension = 384
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 2048
	}
	if opts.BatchParallel <= 0 {
		opts.BatchParallel = 4
	}

	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create cache: %w", err)
	}

	return &Provider{
		generator: generator,
		cache:     cache,
		dimension: opts.Dimension,
		parallel:  opts.BatchParallel,
	}, nil
}

// Dimension returns the configured vector length.
func (p *Provider) Dimension() int {
	return p.dimension
}

// Model identifies the underlying embedding model.
func (p *Provider) Model() string {
	return p.generator.GetModel()
}

// Embed returns the embedding for text, from cache when available.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := p.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := p.generator.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != p.dimension {
		return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(vec), p.dimension)
	}

	p.cache.Add(text, vec)
	return vec, nil
}

// EmbedBatch embeds all texts, preserving input order. Requests run with
// bounded concurrency; the first error cancels the remaining work.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, p.parallel)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, text := range texts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := p.Embed(ctx, text)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embedding batch item %d: %w", i, err)
				}
				mu.Unlock()
				cancel()
				return
			}
			results[i] = vec
		}(i, text)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// CacheLen reports the number of cached embeddings.
func (p *Provider) CacheLen() int {
	return p.cache.Len()
}
