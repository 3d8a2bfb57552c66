package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/sweetpotato0/coverwise/rag/persistence"
)

// TestMongoStore requires a running MongoDB server.
// Set MONGODB_URI to run it.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB store tests")
	}

	store, err := New(&Config{URI: uri, Database: "coverwise_test", RecordID: "test"})
	if err != nil {
		t.Skipf("Failed to connect to MongoDB: %v", err)
	}
	ctx := context.Background()
	defer store.Close(ctx)
	_ = store.Clear(ctx)
	defer store.Clear(ctx)

	rec, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rec.Chunks) != 0 {
		t.Fatalf("expected empty record, got %d chunks", len(rec.Chunks))
	}

	for _, text := range []string{"first", "second"} {
		want := persistence.Record{Chunks: []persistence.ChunkRecord{
			{Text: text, Metadata: map[string]any{"vendor_id": "v1"}},
		}}
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Chunks) != 1 || got.Chunks[0].Text != "second" {
		t.Errorf("unexpected record %+v", got)
	}
}
