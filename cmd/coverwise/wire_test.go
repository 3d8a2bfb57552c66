package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/catalog"
	"github.com/sweetpotato0/coverwise/config"
	"github.com/sweetpotato0/coverwise/contrib/persistence/file"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/pkg/logging"
	"github.com/sweetpotato0/coverwise/rag/document"
	"github.com/sweetpotato0/coverwise/rag/persistence"
)

func TestNewEmbedder(t *testing.T) {
	emb, err := newEmbedder(config.EmbedderConfig{Provider: "hashing", Dimension: 64})
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	if emb.Dimension() != 64 {
		t.Errorf("Dimension = %d", emb.Dimension())
	}

	t.Setenv("COVERWISE_TEST_EMPTY_KEY", "")
	_, err = newEmbedder(config.EmbedderConfig{Provider: "openai", Dimension: 1536, APIKeyEnv: "COVERWISE_TEST_EMPTY_KEY"})
	if !errors.Is(err, errorskg.ErrMissingConfiguration) {
		t.Errorf("openai without key: %v", err)
	}

	if _, err := newEmbedder(config.EmbedderConfig{Provider: "word2vec"}); err == nil {
		t.Error("expected error for unknown embedder")
	}
}

func TestNewPersistence(t *testing.T) {
	s, closer, err := newPersistence(context.Background(), config.PersistenceConfig{Backend: "none"})
	if err != nil || closer != nil {
		t.Fatalf("none: err=%v closer=%t", err, closer != nil)
	}
	if _, ok := s.(*persistence.Memory); !ok {
		t.Errorf("none backend = %T", s)
	}

	path := filepath.Join(t.TempDir(), "store.json")
	s, _, err = newPersistence(context.Background(), config.PersistenceConfig{Backend: "file", Path: path})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if fs, ok := s.(*file.Store); !ok || fs.Path() != path {
		t.Errorf("file backend = %T", s)
	}

	if _, _, err := newPersistence(context.Background(), config.PersistenceConfig{Backend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewVectorStore(t *testing.T) {
	ctx := context.Background()
	s, closer, err := newVectorStore(ctx, config.VectorConfig{Backend: "inmemory"}, 64)
	if err != nil || closer != nil || s == nil {
		t.Fatalf("inmemory: err=%v closer=%t", err, closer != nil)
	}
	if _, _, err := newVectorStore(ctx, config.VectorConfig{Backend: "qdrant"}, 0); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Errorf("qdrant without dimension = %v", err)
	}
	if _, _, err := newVectorStore(ctx, config.VectorConfig{Backend: "faiss"}, 64); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewCompleter(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"gemini", "gemini"},
		{"openai", "openai"},
		{"groq", "groq"},
		{"claude", "claude"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c := newCompleter(config.GeneratorConfig{Provider: tt.provider})
			if c == nil || c.Name() != tt.want {
				t.Fatalf("completer = %v", c)
			}
		})
	}
	if c := newCompleter(config.GeneratorConfig{Provider: "none"}); c != nil {
		t.Errorf("none = %v, want nil", c)
	}
}

func TestNewTemplates(t *testing.T) {
	builtin, err := newTemplates(config.GeneratorConfig{})
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if _, err := builtin.Get(advisor.RecommendationTemplate); err != nil {
		t.Errorf("builtin template: %v", err)
	}

	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	if err := os.WriteFile(path, []byte("recommend {{.TopN}}"), 0o600); err != nil {
		t.Fatal(err)
	}
	custom, err := newTemplates(config.GeneratorConfig{PromptFile: path})
	if err != nil {
		t.Fatalf("prompt file: %v", err)
	}
	if got, err := custom.Render(advisor.RecommendationTemplate, map[string]any{"TopN": 2}); err != nil || got != "recommend 2" {
		t.Errorf("Render = %q, %v", got, err)
	}

	if _, err := newTemplates(config.GeneratorConfig{PromptFile: filepath.Join(t.TempDir(), "absent.tmpl")}); err == nil {
		t.Error("expected error for missing prompt file")
	}
}

func TestNewTokenizer(t *testing.T) {
	tok, err := newTokenizer("simple")
	if err != nil {
		t.Fatalf("simple: %v", err)
	}
	if tok.CountTokens("two words") != 2 {
		t.Errorf("CountTokens = %d", tok.CountTokens("two words"))
	}
}

func TestBuildRestoresAndRecommends(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Persistence.Path = filepath.Join(t.TempDir(), "vector_store.json")
	logger := logging.Discard()

	first, err := build(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := first.retriever.Ingest(ctx, document.Document{Content: "Roadside assistance.\n\nFuneral benefit."}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	first.close(ctx, logger)

	second, err := build(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer second.close(ctx, logger)
	n, err := second.retriever.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("restored count = %d, %v", n, err)
	}

	profile := catalog.NewProfile()
	profile.Needs = []string{"roadside"}
	payload, err := second.advisor.Recommend(ctx, advisor.Request{
		Profile:    profile,
		Candidates: []catalog.Product{catalog.NewProduct("p1")},
	})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if payload.Source != advisor.SourceRanking || len(payload.ContextUsed) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}
