package qdrant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
)

func TestPointPayloadRoundTrip(t *testing.T) {
	emb := &vector.Embedding{
		ID:       "doc_chunk_1",
		Text:     "Roadside assistance",
		Vector:   []float32{0.6, 0.8},
		Metadata: map[string]any{"vendor_id": "v1"},
	}
	point, err := toPoint(7, emb)
	if err != nil {
		t.Fatalf("toPoint: %v", err)
	}
	if point.GetId().GetNum() != 7 {
		t.Errorf("point id = %v", point.GetId())
	}
	got, err := fromPayload(point.GetPayload(), point.GetVectors().GetVector().GetData())
	if err != nil {
		t.Fatalf("fromPayload: %v", err)
	}
	if got.ID != emb.ID || got.Text != emb.Text || got.Metadata["vendor_id"] != "v1" {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Vector) != 2 || got.Vector[1] != 0.8 {
		t.Errorf("vector = %v", got.Vector)
	}
}

func TestPayloadWithoutMetadata(t *testing.T) {
	point, err := toPoint(0, &vector.Embedding{ID: "a", Text: "t", Vector: []float32{1}})
	if err != nil {
		t.Fatalf("toPoint: %v", err)
	}
	got, err := fromPayload(point.GetPayload(), nil)
	if err != nil {
		t.Fatalf("fromPayload: %v", err)
	}
	if got.Metadata != nil {
		t.Errorf("metadata = %v, want nil", got.Metadata)
	}
}

func TestNewRequiresDimension(t *testing.T) {
	_, err := New(context.Background(), &Config{Collection: "x"})
	if !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// QDRANT_ADDR=host:port enables the live test.
func TestStoreLive(t *testing.T) {
	addr := os.Getenv("QDRANT_ADDR")
	if addr == "" {
		t.Skip("QDRANT_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad QDRANT_ADDR %q", addr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, &Config{
		Host:       host,
		Port:       port,
		Collection: fmt.Sprintf("coverwise_test_%d", time.Now().UnixNano()),
		Dimension:  2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.Dimension() != 0 {
		t.Errorf("empty collection Dimension = %d", s.Dimension())
	}
	err = s.AddEmbeddings(ctx, []*vector.Embedding{
		{ID: "a", Text: "first", Vector: []float32{1, 0}},
		{ID: "b", Text: "second", Vector: []float32{0, 1}},
		{ID: "c", Text: "third", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}

	matches, err := s.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].Embedding.ID != "a" || matches[1].Embedding.ID != "c" {
		t.Errorf("matches = %+v", matches)
	}

	all, err := s.Embeddings(ctx)
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("Embeddings order = %+v", all)
	}
	if err := s.AddEmbeddings(ctx, []*vector.Embedding{{ID: "d", Vector: []float32{1, 0, 0}}}); !errors.Is(err, errorskg.ErrDimensionMismatch) {
		t.Errorf("mismatched batch: %v", err)
	}
}
