package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/pkg/telemetry"
	"github.com/sweetpotato0/coverwise/rag/chunking"
	"github.com/sweetpotato0/coverwise/rag/document"
	"github.com/sweetpotato0/coverwise/rag/embedder"
	"github.com/sweetpotato0/coverwise/rag/persistence"
	"github.com/sweetpotato0/coverwise/rag/preprocess"
	"github.com/sweetpotato0/coverwise/vector"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTopK is the number of passages returned when a caller passes k <= 0.
const DefaultTopK = 3

// Config controls retrieval behaviour.
type Config struct {
	DefaultTopK int
	Logger      *slog.Logger
}

// Option customizes retriever config.
type Option func(*Config)

// WithDefaultTopK sets the result count used when Search receives k <= 0.
func WithDefaultTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.DefaultTopK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

// Result is one retrieved passage.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float32        `json:"score"`
}

// Retriever coordinates chunking, embedding, persistence and similarity search
// over policy documents.
//
// Ingestion is serialised. Each batch is persisted in full before it becomes
// visible in the vector store, so a failed save changes nothing.
type Retriever struct {
	store    vector.VectorStore
	embedder vector.Embedder
	chunker  chunking.Chunker
	persist  persistence.Store
	cfg      Config
	logger   *slog.Logger

	ingestMu sync.Mutex
}

// New creates a retriever. A nil chunker uses the paragraph chunker and a nil
// persistence store keeps the record in memory only.
func New(store vector.VectorStore, emb vector.Embedder, chunker chunking.Chunker, persist persistence.Store, opts ...Option) *Retriever {
	cfg := Config{DefaultTopK: DefaultTopK}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("retriever")
	}
	if chunker == nil {
		chunker = chunking.NewParagraphChunker()
	}
	if persist == nil {
		persist = persistence.NewMemory()
	}
	var normalized vector.Embedder
	if emb != nil {
		normalized = embedder.Normalize(emb)
	}
	return &Retriever{
		store:    store,
		embedder: normalized,
		chunker:  chunker,
		persist:  persist,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

func (r *Retriever) configured() error {
	if r.store == nil || r.embedder == nil {
		return fmt.Errorf("retriever not fully configured: %w", errorskg.ErrMissingConfiguration)
	}
	return nil
}

// Ingest chunks a document, embeds every chunk in one batch call, persists the
// whole store and appends the chunks. It returns the number of chunks added.
func (r *Retriever) Ingest(ctx context.Context, doc document.Document) (n int, err error) {
	ctx, span := telemetry.Start(ctx, "retriever.Ingest", attribute.String("document.content_type", doc.ContentType))
	defer func() { telemetry.End(span, err) }()

	if err := r.configured(); err != nil {
		return 0, err
	}

	document.EnsureDocumentID(&doc)
	if doc.IsHTML() {
		text, err := preprocess.HTMLToText(doc.Content)
		if err != nil {
			return 0, fmt.Errorf("convert html document %s: %v: %w", doc.ID, err, errorskg.ErrInvalidInput)
		}
		doc.Content = text
	}

	chunks, err := r.chunker.Chunk(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document %s: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if dim := r.store.Dimension(); dim > 0 && len(vectors[0]) != dim {
		return 0, fmt.Errorf("embedding has %d dimensions, store has %d: %w", len(vectors[0]), dim, errorskg.ErrDimensionMismatch)
	}

	batch := make([]*vector.Embedding, len(chunks))
	for i, chunk := range chunks {
		batch[i] = &vector.Embedding{
			ID:       chunk.ID,
			Vector:   vectors[i],
			Text:     chunk.Text,
			Metadata: document.CloneMetadata(chunk.Metadata),
		}
	}

	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	existing, err := r.store.Embeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot store: %w", err)
	}
	previous := recordOf(existing)
	next := recordOf(append(existing, batch...))

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := r.persist.Save(ctx, next); err != nil {
		r.logger.Error("persist vector store failed", "document_id", doc.ID, "error", err)
		return 0, fmt.Errorf("persist %d chunks: %v: %w", len(batch), err, errorskg.ErrStorage)
	}
	if err := r.store.AddEmbeddings(ctx, batch); err != nil {
		// Roll the durable record back so it matches memory again.
		if rbErr := r.persist.Save(context.WithoutCancel(ctx), previous); rbErr != nil {
			r.logger.Error("restore persisted record failed", "document_id", doc.ID, "error", rbErr)
		}
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	r.logger.Info("document ingested",
		"document_id", doc.ID,
		"vendor_id", doc.Metadata["vendor_id"],
		"chunks", len(batch),
	)
	return len(batch), nil
}

// Load rebuilds an empty store from the persisted record, re-embedding every
// chunk's text. It returns the number of chunks restored.
func (r *Retriever) Load(ctx context.Context) (n int, err error) {
	ctx, span := telemetry.Start(ctx, "retriever.Load")
	defer func() { telemetry.End(span, err) }()

	if err := r.configured(); err != nil {
		return 0, err
	}

	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	count, err := r.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, fmt.Errorf("load into populated store (%d chunks): %w", count, errorskg.ErrInvalidInput)
	}

	rec, err := r.persist.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted record: %v: %w", err, errorskg.ErrStorage)
	}
	if len(rec.Chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(rec.Chunks))
	for i, c := range rec.Chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed persisted chunks: %w", err)
	}

	batch := make([]*vector.Embedding, len(rec.Chunks))
	for i, c := range rec.Chunks {
		batch[i] = &vector.Embedding{
			ID:       document.NextChunkID("restored"),
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: document.CloneMetadata(c.Metadata),
		}
	}
	if err := r.store.AddEmbeddings(ctx, batch); err != nil {
		return 0, fmt.Errorf("restore chunks: %w", err)
	}

	r.logger.Info("vector store restored", "chunks", len(batch))
	return len(batch), nil
}

// Search returns up to k passages most similar to query, most relevant first.
// An empty store yields an empty result.
func (r *Retriever) Search(ctx context.Context, query string, k int) (results []Result, err error) {
	ctx, span := telemetry.Start(ctx, "retriever.Search", attribute.Int("search.k", k))
	defer func() { telemetry.End(span, err) }()

	if err := r.configured(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = r.cfg.DefaultTopK
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Result{}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.store.Search(ctx, queryVec, k)
	if err != nil {
		if errors.Is(err, errorskg.ErrDimensionMismatch) {
			return nil, fmt.Errorf("query embedding incompatible with store: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results = make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:       m.Embedding.ID,
			Text:     m.Embedding.Text,
			Metadata: document.CloneMetadata(m.Embedding.Metadata),
			Score:    m.Score,
		})
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

// SearchTexts is Search reduced to passage text.
func (r *Retriever) SearchTexts(ctx context.Context, query string, k int) ([]string, error) {
	results, err := r.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return texts, nil
}

// Count returns the number of chunks indexed.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	return r.store.Count(ctx)
}

func recordOf(embeddings []*vector.Embedding) persistence.Record {
	rec := persistence.Record{Chunks: make([]persistence.ChunkRecord, len(embeddings))}
	for i, e := range embeddings {
		rec.Chunks[i] = persistence.ChunkRecord{
			Text:     e.Text,
			Metadata: document.CloneMetadata(e.Metadata),
		}
	}
	return rec
}
