package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
)

// TestInMemoryVectorStore tests in-memory vector store
func TestInMemoryVectorStore(t *testing.T) {
	ctx := context.Background()

	t.Run("search on empty store", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		results, err := store.Search(ctx, []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("Expected empty non-nil result, got %#v", results)
		}
	})

	t.Run("search embeddings", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		err := store.AddEmbeddings(ctx, []*vector.Embedding{
			{ID: "emb1", Text: "apple", Vector: []float32{1.0, 0.0, 0.0}},
			{ID: "emb2", Text: "banana", Vector: []float32{0.0, 1.0, 0.0}},
			{ID: "emb3", Text: "orange", Vector: []float32{0.6, 0.8, 0.0}},
		})
		if err != nil {
			t.Fatalf("AddEmbeddings failed: %v", err)
		}

		results, err := store.Search(ctx, []float32{1.0, 0.0, 0.0}, 2)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if results[0].Embedding.ID != "emb1" || results[1].Embedding.ID != "emb3" {
			t.Errorf("Unexpected order: %s, %s", results[0].Embedding.ID, results[1].Embedding.ID)
		}
		if results[0].Score < results[1].Score {
			t.Errorf("Scores not descending: %f < %f", results[0].Score, results[1].Score)
		}
	})

	t.Run("fewer entries than k", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		_ = store.AddEmbeddings(ctx, []*vector.Embedding{{ID: "only", Vector: []float32{1}}})
		results, err := store.Search(ctx, []float32{1}, 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("Expected 1 result, got %d", len(results))
		}
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		_ = store.AddEmbeddings(ctx, []*vector.Embedding{
			{ID: "first", Vector: []float32{0, 1}},
			{ID: "second", Vector: []float32{0, 1}},
			{ID: "third", Vector: []float32{0, 1}},
		})
		results, _ := store.Search(ctx, []float32{0, 1}, 3)
		for i, want := range []string{"first", "second", "third"} {
			if results[i].Embedding.ID != want {
				t.Errorf("position %d: got %s, want %s", i, results[i].Embedding.ID, want)
			}
		}
	})

	t.Run("rejected batch leaves store untouched", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		_ = store.AddEmbeddings(ctx, []*vector.Embedding{{ID: "a", Vector: []float32{1, 0}}})

		err := store.AddEmbeddings(ctx, []*vector.Embedding{
			{ID: "b", Vector: []float32{0, 1}},
			{ID: "c", Vector: []float32{0, 1, 0}},
		})
		if !errors.Is(err, errorskg.ErrDimensionMismatch) {
			t.Fatalf("Expected dimension mismatch, got %v", err)
		}
		if n, _ := store.Count(ctx); n != 1 {
			t.Errorf("Expected count 1 after rejected batch, got %d", n)
		}
		entries, vectors := store.Rows()
		if entries != vectors {
			t.Errorf("entries (%d) and vectors (%d) diverged", entries, vectors)
		}
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		_ = store.AddEmbeddings(ctx, []*vector.Embedding{{ID: "a", Vector: []float32{1, 0}}})
		if _, err := store.Search(ctx, []float32{1}, 1); !errors.Is(err, errorskg.ErrDimensionMismatch) {
			t.Errorf("Expected dimension mismatch, got %v", err)
		}
	})

	t.Run("embeddings snapshot is a copy", func(t *testing.T) {
		store := NewInMemoryVectorStore()
		_ = store.AddEmbeddings(ctx, []*vector.Embedding{{ID: "a", Text: "x", Vector: []float32{1, 0}}})
		snap, _ := store.Embeddings(ctx)
		snap[0].Vector[0] = 42
		snap[0].Text = "changed"
		again, _ := store.Embeddings(ctx)
		if again[0].Vector[0] != 1 || again[0].Text != "x" {
			t.Errorf("snapshot mutation leaked into store: %+v", again[0])
		}
	})
}

func TestConcurrentAppendKeepsAlignment(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				batch := []*vector.Embedding{
					{ID: fmt.Sprintf("%d-%d-a", w, i), Vector: []float32{1, 0}},
					{ID: fmt.Sprintf("%d-%d-b", w, i), Vector: []float32{0, 1}},
				}
				if err := store.AddEmbeddings(ctx, batch); err != nil {
					t.Errorf("AddEmbeddings failed: %v", err)
				}
				if _, err := store.Search(ctx, []float32{1, 0}, 3); err != nil {
					t.Errorf("Search failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	entries, vectors := store.Rows()
	if entries != 400 || vectors != 400 {
		t.Errorf("expected 400 aligned rows, got entries=%d vectors=%d", entries, vectors)
	}
}
