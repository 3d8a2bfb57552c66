package vector

import (
	"context"
	"math"
)

// Embedding is a piece of text together with its vector and metadata.
type Embedding struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Match is a search hit with its similarity to the query.
type Match struct {
	Embedding *Embedding
	Score     float32
}

// VectorStore defines the interface for vector storage and similarity search.
// Stores are append-only: entries keep their insertion order.
type VectorStore interface {
	// AddEmbeddings appends a batch. Either every embedding in the batch is
	// stored or none is.
	AddEmbeddings(ctx context.Context, embeddings []*Embedding) error

	// Search returns up to topK entries ordered by descending similarity
	Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error)

	// Embeddings returns the stored entries in insertion order
	Embeddings(ctx context.Context) ([]*Embedding, error)

	// Count returns the number of embeddings
	Count(ctx context.Context) (int, error)

	// Dimension returns the vector length held by the store, 0 when empty
	Dimension() int
}

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// Dot returns the inner product of two vectors of equal length, or 0 when the
// lengths differ.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales the vector to unit length (L2 norm) in place.
// Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	n := Norm(vec)
	if n == 0 {
		return vec
	}
	inv := float32(1 / n)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Clone returns a copy of the embedding with its own vector and metadata.
func (e *Embedding) Clone() *Embedding {
	if e == nil {
		return nil
	}
	out := *e
	if e.Vector != nil {
		out.Vector = append([]float32(nil), e.Vector...)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
