// Package watcher ingests policy documents dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/rag/document"
)

// DefaultPattern matches the document types the ingestion path understands.
const DefaultPattern = "**/*.{txt,md,html,htm}"

// Ingester receives the documents read from disk.
type Ingester interface {
	Ingest(ctx context.Context, doc document.Document) (int, error)
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithPattern sets the doublestar pattern, relative to the directory.
func WithPattern(p string) Option {
	return func(w *Watcher) {
		if p != "" {
			w.pattern = p
		}
	}
}

// WithVendorID tags every ingested document with a vendor id.
func WithVendorID(id string) Option {
	return func(w *Watcher) {
		w.vendorID = id
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher ingests matching files once at startup and again when they change.
type Watcher struct {
	dir      string
	pattern  string
	vendorID string
	ingester Ingester
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]int64
}

// New creates a watcher over dir.
func New(dir string, ingester Ingester, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required: %w", errorskg.ErrInvalidInput)
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required: %w", errorskg.ErrInvalidInput)
	}
	w := &Watcher{
		dir:      dir,
		pattern:  DefaultPattern,
		ingester: ingester,
		logger:   logging.WithComponent("watcher"),
		seen:     make(map[string]int64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if !doublestar.ValidatePattern(w.pattern) {
		return nil, fmt.Errorf("bad pattern %q: %w", w.pattern, errorskg.ErrInvalidInput)
	}
	return w, nil
}

// Scan ingests every matching file not ingested before and returns the
// number of files ingested.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(w.dir), w.pattern)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	n := 0
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := w.ingestFile(ctx, filepath.Join(w.dir, filepath.FromSlash(rel)))
		if err != nil {
			w.logger.Warn("ingest failed", "file", rel, "error", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Run scans the directory and then ingests files as they are written,
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addDirs(fw); err != nil {
		return err
	}
	n, err := w.Scan(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("watching policy directory", "dir", w.dir, "pattern", w.pattern, "ingested", n)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := fw.Add(ev.Name); err != nil {
			w.logger.Warn("watch subdirectory", "dir", ev.Name, "error", err)
		}
		return
	}
	if _, err := w.ingestFile(ctx, ev.Name); err != nil {
		w.logger.Warn("ingest failed", "file", ev.Name, "error", err)
	}
}

func (w *Watcher) addDirs(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

// Match reports whether path, relative to the watched directory, is ingested.
func (w *Watcher) Match(rel string) bool {
	ok, _ := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return ok
}

// ingestFile reports whether the file was ingested. Unchanged files and
// files outside the pattern are skipped.
func (w *Watcher) ingestFile(ctx context.Context, path string) (bool, error) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || !w.Match(rel) {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	stamp := info.ModTime().UnixNano()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[path] == stamp {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return false, nil
	}
	doc := DocumentFor(filepath.ToSlash(rel), string(data), w.vendorID)
	if _, err := w.ingester.Ingest(ctx, doc); err != nil {
		if errors.Is(err, errorskg.ErrInvalidInput) {
			w.seen[path] = stamp
		}
		return false, err
	}
	w.seen[path] = stamp
	return true, nil
}

// DocumentFor builds the document for a file's contents.
func DocumentFor(rel, content, vendorID string) document.Document {
	meta := map[string]any{"filename": rel}
	if vendorID != "" {
		meta["vendor_id"] = vendorID
	}
	doc := document.Document{
		ID:       rel,
		Content:  content,
		Metadata: meta,
	}
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".html", ".htm":
		doc.ContentType = document.ContentTypeHTML
	default:
		doc.ContentType = document.ContentTypeText
	}
	return doc
}
