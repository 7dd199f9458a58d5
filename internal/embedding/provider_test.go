package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts upstream calls.
type countingEmbedder struct {
	inner *StaticEmbedder
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return nil, errors.New("upstream down")
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) GetModel() string { return "counting" }

func (c *countingEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestProvider(t *testing.T, gen *countingEmbedder) *Provider {
	t.Helper()
	p, err := NewProvider(gen, Options{Dimension: 64, CacheSize: 16, BatchParallel: 2})
	require.NoError(t, err)
	return p
}

func TestEmbedDeterministic(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(64)}
	p := newTestProvider(t, gen)

	a, err := p.Embed(context.Background(), "likes green tea")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "likes green tea")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, Similarity(a, b), 1e-9, "same text is maximally similar to itself")
}

func TestEmbedCachesRepeatedText(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(64)}
	p := newTestProvider(t, gen)

	for i := 0; i < 5; i++ {
		_, err := p.Embed(context.Background(), "same text every time")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, 1, p.CacheLen())
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(32)} // provider expects 64
	p := newTestProvider(t, gen)

	_, err := p.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(64)}
	p := newTestProvider(t, gen)

	texts := []string{"alpha", "beta", "gamma", "delta", "alpha"}
	vecs, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		want, err := p.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, vecs[i], "position %d", i)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(64)}
	p := newTestProvider(t, gen)

	vecs, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedBatchPropagatesError(t *testing.T) {
	gen := &countingEmbedder{inner: NewStaticEmbedder(64), fail: true}
	p := newTestProvider(t, gen)

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestStaticEmbedderProperties(t *testing.T) {
	s := NewStaticEmbedder(128)

	empty, err := s.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, Similarity(empty, empty), "empty text embeds to the zero vector")

	near1, err := s.Embed(context.Background(), "prefers python for data analysis")
	require.NoError(t, err)
	near2, err := s.Embed(context.Background(), "prefers python for data science")
	require.NoError(t, err)
	far, err := s.Embed(context.Background(), "owns a vintage motorcycle")
	require.NoError(t, err)

	assert.Greater(t, Similarity(near1, near2), Similarity(near1, far),
		"overlapping texts score higher than unrelated texts")
}
