package tiktoken

import (
	"os"
	"testing"
)

// Encodings are downloaded on first use, so this test only runs when
// TIKTOKEN_TEST is set.
func TestTokenizer(t *testing.T) {
	if os.Getenv("TIKTOKEN_TEST") == "" {
		t.Skip("TIKTOKEN_TEST not set, skipping tiktoken tests")
	}
	tok, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	text := "Roadside assistance is included."
	ids := tok.Encode(text)
	if tok.CountTokens(text) != len(ids) {
		t.Errorf("CountTokens = %d, want %d", tok.CountTokens(text), len(ids))
	}
	if got := tok.DecodeIds(ids); got != text {
		t.Errorf("DecodeIds = %q, want %q", got, text)
	}
}

func TestNewUnknownEncoding(t *testing.T) {
	if _, err := New("no-such-encoding"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}
