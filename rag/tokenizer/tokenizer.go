// Package tokenizer counts tokens so retrieved context can be held to a budget
// before it is sent to a generation model.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer encodes text into token ids.
type Tokenizer interface {
	Encode(text string) []int
	CountTokens(text string) int
	DecodeIds(ids []int) string
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer is a vocabulary-growing word tokenizer. It approximates
// model token counts when no model encoding is configured.
type SimpleTokenizer struct {
	mu       sync.Mutex
	vocab    map[string]int
	invVocab map[int]string
	nextID   int
}

// NewSimpleTokenizer creates a tokenizer with an empty vocabulary.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		nextID:   1, // 0 is reserved for padding
	}
}

// Tokenization rules:
// letters and digits form one token per run, every Han character and every
// punctuation rune is its own token, whitespace separates.
func splitTokens(s string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Han, r):
			flush()
			toks = append(toks, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}

	flush()
	return toks
}

// Encode assigns ids to tokens, registering unseen ones.
func (t *SimpleTokenizer) Encode(text string) []int {
	toks := splitTokens(text)
	ids := make([]int, 0, len(toks))

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tok := range toks {
		id, ok := t.vocab[tok]
		if !ok {
			id = t.nextID
			t.vocab[tok] = id
			t.invVocab[id] = tok
			t.nextID++
		}
		ids = append(ids, id)
	}
	return ids
}

// CountTokens returns the number of tokens without touching the vocabulary.
func (t *SimpleTokenizer) CountTokens(text string) int {
	return len(splitTokens(text))
}

// DecodeIds joins known tokens with single spaces. Unknown ids are skipped.
func (t *SimpleTokenizer) DecodeIds(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if tok, ok := t.invVocab[id]; ok {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, " ")
}

// Fit returns the longest prefix of texts whose combined token count stays
// within budget. A non-positive budget or a nil tokenizer disables the limit.
func Fit(tok Tokenizer, texts []string, budget int) []string {
	if tok == nil || budget <= 0 {
		return texts
	}
	used := 0
	for i, text := range texts {
		used += tok.CountTokens(text)
		if used > budget {
			return texts[:i]
		}
	}
	return texts
}
