package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
)

// InMemoryVectorStore keeps entries and their vectors in two index-aligned
// slices. Both slices always have the same length.
type InMemoryVectorStore struct {
	mu        sync.RWMutex
	entries   []*vector.Embedding
	matrix    [][]float32
	dimension int
}

// NewInMemoryVectorStore creates a new in-memory vector store
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{}
}

// AddEmbeddings validates the whole batch before extending entries and
// matrix together under one write lock.
func (s *InMemoryVectorStore) AddEmbeddings(ctx context.Context, embeddings []*vector.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for i, emb := range embeddings {
		if emb == nil {
			return fmt.Errorf("embedding %d cannot be nil: %w", i, errorskg.ErrInvalidInput)
		}
		if len(emb.Vector) == 0 {
			return fmt.Errorf("embedding %d vector cannot be empty: %w", i, errorskg.ErrInvalidInput)
		}
		if dim == 0 {
			dim = len(emb.Vector)
		}
		if len(emb.Vector) != dim {
			return fmt.Errorf("embedding %d has %d dimensions, store holds %d: %w", i, len(emb.Vector), dim, errorskg.ErrDimensionMismatch)
		}
	}

	entries := make([]*vector.Embedding, 0, len(s.entries)+len(embeddings))
	entries = append(entries, s.entries...)
	matrix := make([][]float32, 0, len(s.matrix)+len(embeddings))
	matrix = append(matrix, s.matrix...)
	for _, emb := range embeddings {
		cp := emb.Clone()
		matrix = append(matrix, cp.Vector)
		cp.Vector = nil
		entries = append(entries, cp)
	}

	s.entries = entries
	s.matrix = matrix
	s.dimension = dim
	return nil
}

// Search scores every row by inner product with the query. Ties keep
// insertion order.
func (s *InMemoryVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]vector.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.matrix) == 0 {
		return []vector.Match{}, nil
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query has %d dimensions, store holds %d: %w", len(queryVector), s.dimension, errorskg.ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = 10
	}

	type result struct {
		index int
		score float32
	}
	results := make([]result, len(s.matrix))
	for i, row := range s.matrix {
		results[i] = result{index: i, score: vector.Dot(queryVector, row)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := topK
	if limit > len(results) {
		limit = len(results)
	}

	matches := make([]vector.Match, limit)
	for i := 0; i < limit; i++ {
		r := results[i]
		emb := s.entries[r.index].Clone()
		emb.Vector = append([]float32(nil), s.matrix[r.index]...)
		matches[i] = vector.Match{Embedding: emb, Score: r.score}
	}
	return matches, nil
}

// Embeddings returns copies of the stored entries in insertion order.
func (s *InMemoryVectorStore) Embeddings(ctx context.Context) ([]*vector.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*vector.Embedding, len(s.entries))
	for i, entry := range s.entries {
		emb := entry.Clone()
		emb.Vector = append([]float32(nil), s.matrix[i]...)
		out[i] = emb
	}
	return out, nil
}

// Count returns the number of embeddings
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries), nil
}

// Dimension returns the vector length fixed by the first stored batch.
func (s *InMemoryVectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Rows reports the length of both parallel slices.
func (s *InMemoryVectorStore) Rows() (entries, vectors int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), len(s.matrix)
}
