// Package hashing provides a deterministic, offline embedder based on the
// hashing trick over lowercase word tokens. It needs no credentials and is
// the default when no remote embedding model is configured.
package hashing

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/sweetpotato0/coverwise/vector"
)

// DefaultDimension is used when New receives a non-positive dimension.
const DefaultDimension = 256

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Embedder maps every token to one of dimension buckets with FNV-1a and
// counts occurrences. Output vectors are L2-normalised.
type Embedder struct {
	dimension int
}

var _ vector.Embedder = (*Embedder)(nil)

// New creates a hashing embedder.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension returns the number of hash buckets.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed converts text to a vector. Text without tokens yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimension)
	for _, tok := range Tokenize(text) {
		vec[e.bucket(tok)]++
	}
	return vector.Normalize(vec), nil
}

// EmbedBatch converts multiple texts to embeddings.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) bucket(tok string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return int(h.Sum32() % uint32(e.dimension))
}

// Tokenize lowercases text and returns its letter/digit runs.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}
