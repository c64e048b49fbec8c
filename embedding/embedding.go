// Package embedding defines the text-to-vector contract consumed by the
// memory managers, plus a TTL-bounded cache that amortizes provider cost.
//
// Embedders fail closed: an error means callers should skip the memory fetch,
// never index a zero vector.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Cached wraps an Embedder with a ristretto cache keyed on a hash of the
// text. Entries expire after a short TTL so provider-side model updates are
// picked up eventually.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached creates a caching wrapper around inner.
func NewCached(inner Embedder, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl}, nil
}

// Embed returns the cached vector when present, otherwise delegates and
// caches the result. Provider errors are returned as-is and never cached.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := textKey(text)
	if v, ok := c.cache.Get(key); ok {
		if emb, ok := v.([]float32); ok {
			return emb, nil
		}
	}

	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, emb, int64(len(emb)*4), c.ttl)
	return emb, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}

func textKey(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}
