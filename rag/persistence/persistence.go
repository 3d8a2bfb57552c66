// Package persistence defines the durable form of the retrieval store.
//
// Only chunk text and metadata are persisted. Embeddings are recomputed from
// text on load so the record stays valid across embedding model changes.
package persistence

import (
	"context"
	"sync"
)

// ChunkRecord is the persisted form of one chunk.
type ChunkRecord struct {
	Text     string         `json:"text" bson:"text"`
	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Record is the whole persisted store, in insertion order.
type Record struct {
	Chunks []ChunkRecord `json:"chunks" bson:"chunks"`
}

// Clone returns a deep copy of the record's chunk list.
func (r Record) Clone() Record {
	out := Record{Chunks: make([]ChunkRecord, len(r.Chunks))}
	for i, c := range r.Chunks {
		out.Chunks[i] = ChunkRecord{Text: c.Text, Metadata: cloneMap(c.Metadata)}
	}
	return out
}

// Store loads and saves a Record wholesale.
//
// Load on a store that was never saved returns an empty Record and no error.
// Save replaces the previous record; a failed Save must leave the previous
// record readable.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
}

// Memory is a process-local Store, used when durability is disabled and in tests.
type Memory struct {
	mu    sync.RWMutex
	rec   Record
	saves int
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns a copy of the last saved record.
func (m *Memory) Load(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Clone(), nil
}

// Save stores a copy of rec.
func (m *Memory) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
