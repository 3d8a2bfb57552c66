package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
)

type fixedEmbedder struct {
	vecs [][]float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vecs[0], nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f.vecs, nil
}

func (f *fixedEmbedder) Dimension() int { return len(f.vecs[0]) }

func TestNormalizeProducesUnitVectors(t *testing.T) {
	base := &fixedEmbedder{vecs: [][]float32{{3, 4}, {0, 2}}}
	n := Normalize(base)

	vec, err := n.Embed(context.Background(), "q")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if math.Abs(vector.Norm(vec)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", vector.Norm(vec))
	}
	if base.vecs[0][0] != 3 {
		t.Error("base vectors must not be modified in place")
	}

	batch, err := n.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	for i, v := range batch {
		if math.Abs(vector.Norm(v)-1) > 1e-6 {
			t.Errorf("vector %d not unit length: %f", i, vector.Norm(v))
		}
	}
	if n.Dimension() != 2 {
		t.Errorf("Dimension = %d, want 2", n.Dimension())
	}
}

func TestNormalizeRejectsBadBatches(t *testing.T) {
	ctx := context.Background()

	short := Normalize(&fixedEmbedder{vecs: [][]float32{{1, 0}}})
	if _, err := short.EmbedBatch(ctx, []string{"a", "b"}); err == nil {
		t.Error("expected count mismatch error")
	}

	ragged := Normalize(&fixedEmbedder{vecs: [][]float32{{1, 0}, {1}}})
	if _, err := ragged.EmbedBatch(ctx, []string{"a", "b"}); !errors.Is(err, errorskg.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestNormalizeIsIdempotentWrapper(t *testing.T) {
	n := Normalize(&fixedEmbedder{vecs: [][]float32{{1}}})
	if Normalize(n) != n {
		t.Error("wrapping a Normalized embedder should return it unchanged")
	}
	var missing *Normalized
	if _, err := missing.Embed(context.Background(), "x"); !errors.Is(err, errorskg.ErrMissingConfiguration) {
		t.Errorf("expected missing configuration, got %v", err)
	}
}
