// Package file persists the retrieval record as a JSON file on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sweetpotato0/coverwise/rag/persistence"
)

// DefaultPath matches the on-disk location used by earlier deployments.
const DefaultPath = "data/vector_store.json"

// Store reads and writes a persistence.Record at Path.
type Store struct {
	path string
}

var _ persistence.Store = (*Store)(nil)

// New creates a file store. An empty path uses DefaultPath.
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load reads the record. A missing file is an empty record.
func (s *Store) Load(ctx context.Context) (persistence.Record, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Record{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.Record{}, nil
	}
	if err != nil {
		return persistence.Record{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	var rec persistence.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return persistence.Record{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return rec, nil
}

// Save writes the record to a temp file in the same directory and renames it
// over the target, so readers see either the old or the new file.
func (s *Store) Save(ctx context.Context, rec persistence.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Chunks == nil {
		rec.Chunks = []persistence.ChunkRecord{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".vector_store-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
