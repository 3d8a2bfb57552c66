package document

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Content types understood by the ingestion path.
const (
	ContentTypeText = "text/plain"
	ContentTypeHTML = "text/html"
)

// Document is a policy document submitted for ingestion.
type Document struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Chunk is a bounded span of a document that gets embedded and indexed.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Ordinal    int            `json:"ordinal"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var (
	docCounter   atomic.Int64
	chunkCounter atomic.Int64
)

// EnsureDocumentID makes sure every document has an identifier.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	doc.ID = fmt.Sprintf("doc_%d", docCounter.Add(1))
}

// NextChunkID returns a process-unique chunk identifier derived from document ID.
func NextChunkID(docID string) string {
	next := chunkCounter.Add(1)
	if docID == "" {
		return fmt.Sprintf("chunk_%d", next)
	}
	return fmt.Sprintf("%s_chunk_%d", docID, next)
}

// IsHTML reports whether the document declares an HTML body.
func (d Document) IsHTML() bool {
	ct := strings.ToLower(strings.TrimSpace(d.ContentType))
	return strings.HasPrefix(ct, ContentTypeHTML) || ct == "html"
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
