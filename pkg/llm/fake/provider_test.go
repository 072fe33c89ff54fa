package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/pkg/llm"
)

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestDeterministicUnitVectors(t *testing.T) {
	p := New(64)
	out, err := p.Embed(context.Background(), []string{"revenue by year", "revenue by year", ""})
	require.NoError(t, err)

	assert.Equal(t, out[0], out[1])
	assert.InDelta(t, 1.0, dot(out[0], out[0]), 1e-5)
	assert.Equal(t, make([]float32, 64), out[2])
}

func TestSharedWordsRankHigher(t *testing.T) {
	p := New(256)
	q, _ := p.EmbedSingle(context.Background(), "annual revenue table")
	near, _ := p.EmbedSingle(context.Background(), "revenue table for 2020")
	far, _ := p.EmbedSingle(context.Background(), "player statistics")

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestRegistered(t *testing.T) {
	p, err := llm.NewEmbeddingProvider(ProviderName, map[string]any{"dim": 8})
	require.NoError(t, err)

	v, err := p.EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}
