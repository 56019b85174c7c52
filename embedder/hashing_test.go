package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func Test_Hashing_Deterministic(t *testing.T) {
	h := NewHashingEmbedder(64)

	a, err := h.EmbedOne(context.Background(), "Project schedule for March")
	require.NoError(t, err)
	b, err := h.EmbedOne(context.Background(), "project SCHEDULE for march")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func Test_Hashing_Normalised(t *testing.T) {
	h := NewHashingEmbedder(128)
	v, err := h.EmbedOne(context.Background(), "vector database pipeline")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func Test_Hashing_SimilarTextsRankHigher(t *testing.T) {
	h := NewHashingEmbedder(512)
	vs, err := h.EmbedBatch(context.Background(), []string{
		"meeting notes attendees agenda",
		"meeting agenda and attendees",
		"quarterly revenue forecast",
	})
	require.NoError(t, err)
	require.Len(t, vs, 3)

	assert.Greater(t, cosine(vs[0], vs[1]), cosine(vs[0], vs[2]))
}

func Test_Hashing_Empty(t *testing.T) {
	h := NewHashingEmbedder(0)
	v, err := h.EmbedOne(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, v, 256)

	vs, err := h.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vs)
}
