// Package mock provides a deterministic, offline embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder generates bag-of-words embeddings: each lowercased token
// contributes a deterministic pseudo-random vector, summed and normalized.
// Texts sharing words get positive cosine similarity, which is enough to
// exercise similarity thresholds without a real model.
type Embedder struct {
	dims int
}

// New creates a mock embedder with the given dimensionality.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dims: dims}
}

// Embed converts text to a deterministic unit vector.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	sum := make([]float32, m.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		addTokenVector(sum, tok)
	}
	return normalize(sum), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dims
}

func addTokenVector(sum []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()

	for i := range sum {
		// Linear congruential generator keyed on the token hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		sum[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
