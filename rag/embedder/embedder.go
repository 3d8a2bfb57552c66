package embedder

import (
	"context"
	"fmt"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
)

// Normalized wraps a vector.Embedder so every vector it returns has unit
// length. Inner product over its output equals cosine similarity.
type Normalized struct {
	base vector.Embedder
}

var _ vector.Embedder = (*Normalized)(nil)

// Normalize creates the adapter. Wrapping an adapter again returns it as is.
func Normalize(base vector.Embedder) *Normalized {
	if n, ok := base.(*Normalized); ok {
		return n
	}
	return &Normalized{base: base}
}

// Embed embeds a single text.
func (n *Normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	if n == nil || n.base == nil {
		return nil, fmt.Errorf("embedder not configured: %w", errorskg.ErrMissingConfiguration)
	}
	vec, err := n.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vector.Normalize(append([]float32(nil), vec...)), nil
}

// EmbedBatch embeds texts in one call to the base embedder and checks that
// one vector of a single dimension came back per text.
func (n *Normalized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if n == nil || n.base == nil {
		return nil, fmt.Errorf("embedder not configured: %w", errorskg.ErrMissingConfiguration)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := n.base.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) == 0 || len(v) != len(vecs[0]) {
			return nil, fmt.Errorf("embedding %d has %d dimensions: %w", i, len(v), errorskg.ErrDimensionMismatch)
		}
		out[i] = vector.Normalize(append([]float32(nil), v...))
	}
	return out, nil
}

// Dimension reports the base embedder's dimension.
func (n *Normalized) Dimension() int {
	if n == nil || n.base == nil {
		return 0
	}
	return n.base.Dimension()
}
