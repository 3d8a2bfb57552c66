package chunking

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/coverwise/rag/document"
)

// DefaultMaxChars is the longest chunk the paragraph chunker emits.
const DefaultMaxChars = 1000

// Chunker splits documents into chunks that can be embedded and indexed.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error)
}

type Options struct {
	MaxChars    int
	IncludeMeta bool
}

// Option customizes the paragraph chunker.
type Option func(*Options)

// WithMaxChars overrides the window size (characters) used for long paragraphs.
func WithMaxChars(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MaxChars = size
		}
	}
}

// WithMetadataCopy toggles whether document metadata should be copied to chunks.
func WithMetadataCopy(enabled bool) Option {
	return func(o *Options) {
		o.IncludeMeta = enabled
	}
}

var blankLine = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

// ParagraphChunker splits on blank lines and cuts paragraphs longer than
// MaxChars into fixed windows. Windows do not overlap and ignore sentence
// boundaries, so a cut may land mid-sentence.
type ParagraphChunker struct {
	maxChars int
	addMeta  bool
}

// NewParagraphChunker constructs a chunker with a 1000 character window.
func NewParagraphChunker(opts ...Option) *ParagraphChunker {
	cfg := &Options{
		MaxChars:    DefaultMaxChars,
		IncludeMeta: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &ParagraphChunker{
		maxChars: cfg.MaxChars,
		addMeta:  cfg.IncludeMeta,
	}
}

// Chunk splits the document into bounded pieces. Documents with no
// non-whitespace text yield no chunks.
func (c *ParagraphChunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	document.EnsureDocumentID(&doc)

	segments := Split(doc.Content, c.maxChars)
	chunks := make([]document.Chunk, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, c.newChunk(doc, i+1, seg))
	}
	return chunks, nil
}

// Split returns the trimmed, non-empty paragraphs of text, with any paragraph
// longer than maxChars runes cut into consecutive windows of that size.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var out []string
	for _, part := range blankLine.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, windows(part, maxChars)...)
	}
	return out
}

func windows(s string, size int) []string {
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func (c *ParagraphChunker) newChunk(doc document.Document, ordinal int, text string) document.Chunk {
	chunk := document.Chunk{
		ID:         document.NextChunkID(doc.ID),
		DocumentID: doc.ID,
		Text:       text,
		Ordinal:    ordinal,
	}
	if c.addMeta {
		chunk.Metadata = document.CloneMetadata(doc.Metadata)
	}
	return chunk
}
