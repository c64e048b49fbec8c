// Package chromem implements the store.VectorIndex contract on chromem-go,
// a pure Go embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/vitalplane/agentmem/store"
)

// Index manages named chromem collections. Each index name maps to one
// collection, giving memory kinds and users their own namespaces.
type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an in-memory vector index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (s *Index) getOrCreate(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func and
	// the default cosine distance.
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *Index) get(name string) (*chromem.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	return col, ok
}

// Upsert writes a document, creating the index on first use.
func (s *Index) Upsert(ctx context.Context, index string, doc store.Document) error {
	col, err := s.getOrCreate(index)
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	})
}

// Search returns up to k nearest documents. chromem rejects nResults larger
// than the collection size, so k is clamped to the document count.
func (s *Index) Search(ctx context.Context, index string, embedding []float32, k int, where map[string]string) ([]store.Hit, error) {
	col, ok := s.get(index)
	if !ok {
		return nil, nil
	}

	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}

	hits := make([]store.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, store.Hit{
			Document: store.Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// Count returns the number of documents in the index, 0 when absent.
func (s *Index) Count(index string) int {
	col, ok := s.get(index)
	if !ok {
		return 0
	}
	return col.Count()
}

// Drop removes the whole index and reports how many documents it held.
func (s *Index) Drop(ctx context.Context, index string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[index]
	if !ok {
		return 0, nil
	}
	n := col.Count()
	if err := s.db.DeleteCollection(index); err != nil {
		return 0, fmt.Errorf("delete collection %s: %w", index, err)
	}
	delete(s.collections, index)
	return n, nil
}

// Close releases resources. chromem keeps everything in memory, so this is a
// no-op.
func (s *Index) Close() error {
	return nil
}
