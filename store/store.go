// Package store defines the storage contracts the memory managers depend on:
// a Redis-shaped key/value store and a tag-filtered vector index. Both are
// consumed as black boxes; TTL expiry is delegated entirely to the backend.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KV.Get for missing keys.
var ErrKeyNotFound = errors.New("store: key not found")

// KV is the key/value store contract: string get/set with optional TTL, hash
// field operations with atomic counters, list operations for ordered logs,
// and sorted-set range queries. All operations are scoped by caller-supplied
// keys; concurrent access to disjoint keys needs no application-level locks.
type KV interface {
	// Get returns the string value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes a string value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// HGetAll returns all fields of a hash; empty map when the key is missing.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes hash fields.
	HSet(ctx context.Context, key string, fields map[string]any) error

	// HIncrBy atomically increments an integer hash field and returns the
	// new value.
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	// LPush prepends values to a list.
	LPush(ctx context.Context, key string, values ...string) error

	// LRange returns list elements in [start, stop], inclusive.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim keeps only list elements in [start, stop].
	LTrim(ctx context.Context, key string, start, stop int64) error

	// ZAdd adds a member with a score to a sorted set.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRangeByScore returns members with scores in [min, max].
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan returns all keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Document is a record in a vector index. The caller supplies the embedding;
// indexes never embed on their own.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Hit is a search result with its similarity score (cosine, higher is closer).
type Hit struct {
	Document
	Similarity float32
}

// VectorIndex is the vector similarity search contract. Indexes are named
// namespaces (per user, per memory kind); where clauses filter on exact
// metadata tags.
type VectorIndex interface {
	// Upsert writes a document into the named index, creating the index on
	// first use.
	Upsert(ctx context.Context, index string, doc Document) error

	// Search returns up to k nearest documents, optionally filtered by exact
	// metadata tags. An empty or missing index yields no hits, not an error.
	Search(ctx context.Context, index string, embedding []float32, k int, where map[string]string) ([]Hit, error)

	// Count returns the number of documents in the index, 0 when absent.
	Count(index string) int

	// Drop removes the whole index and returns how many documents it held.
	Drop(ctx context.Context, index string) (int, error)

	// Close releases resources.
	Close() error
}
