package minio

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/sweetpotato0/coverwise/rag/persistence"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"text":"Roadside assistance"}`), 50)
	compressed, err := compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("compressed %d bytes into %d", len(data), len(compressed))
	}
	got, err := decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}
}

func TestDecompressCorrupt(t *testing.T) {
	if _, err := decompress([]byte("not zstd")); err == nil {
		t.Error("expected error for corrupt data")
	}
}

func TestDefaults(t *testing.T) {
	s, err := New(&Config{AccessKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.bucket != "coverwise" || s.object != "vector_store.json.zst" {
		t.Errorf("bucket/object = %s/%s", s.bucket, s.object)
	}
}

// TestMinioStore requires a MinIO or S3-compatible server.
// Set MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY to run it.
func TestMinioStore(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping object storage tests")
	}
	store, err := New(&Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "coverwise-test",
		Object:    "test/vector_store.json.zst",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := store.EnsureBucket(ctx); err != nil {
		t.Skipf("object storage not reachable: %v", err)
	}
	_ = store.Clear(ctx)
	defer store.Clear(ctx)

	rec, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if len(rec.Chunks) != 0 {
		t.Errorf("expected empty record, got %d chunks", len(rec.Chunks))
	}

	want := persistence.Record{Chunks: []persistence.ChunkRecord{
		{Text: "Para A.", Metadata: map[string]any{"vendor_id": "v1"}},
		{Text: "Para B."},
	}}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Chunks) != 2 || got.Chunks[1].Text != "Para B." {
		t.Errorf("unexpected record %+v", got)
	}
}
