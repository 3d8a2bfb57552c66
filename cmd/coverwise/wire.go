package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sweetpotato0/coverwise/advisor"
	"github.com/sweetpotato0/coverwise/config"
	"github.com/sweetpotato0/coverwise/contrib/embedder/hashing"
	openaiembedder "github.com/sweetpotato0/coverwise/contrib/embedder/openai"
	"github.com/sweetpotato0/coverwise/contrib/persistence/file"
	"github.com/sweetpotato0/coverwise/contrib/persistence/minio"
	"github.com/sweetpotato0/coverwise/contrib/persistence/mongo"
	"github.com/sweetpotato0/coverwise/contrib/persistence/pg"
	"github.com/sweetpotato0/coverwise/contrib/persistence/redis"
	"github.com/sweetpotato0/coverwise/contrib/provider"
	"github.com/sweetpotato0/coverwise/contrib/provider/claude"
	"github.com/sweetpotato0/coverwise/contrib/provider/gemini"
	openaiprovider "github.com/sweetpotato0/coverwise/contrib/provider/openai"
	"github.com/sweetpotato0/coverwise/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/coverwise/contrib/vector/inmemory"
	"github.com/sweetpotato0/coverwise/contrib/vector/qdrant"
	"github.com/sweetpotato0/coverwise/prompt"
	"github.com/sweetpotato0/coverwise/rag/chunking"
	"github.com/sweetpotato0/coverwise/rag/persistence"
	"github.com/sweetpotato0/coverwise/rag/retriever"
	"github.com/sweetpotato0/coverwise/rag/tokenizer"
	"github.com/sweetpotato0/coverwise/scoring"
	"github.com/sweetpotato0/coverwise/vector"
)

// app holds the wired engines and everything that must be closed on exit.
type app struct {
	retriever *retriever.Retriever
	advisor   *advisor.Orchestrator
	closers   []func(context.Context) error
}

func (a *app) close(ctx context.Context, logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	a := &app{}

	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	persist, closer, err := newPersistence(ctx, cfg.Persistence)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	store, closer, err := newVectorStore(ctx, cfg.Vector, emb.Dimension())
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.retriever = retriever.New(
		store,
		emb,
		chunking.NewParagraphChunker(chunking.WithMaxChars(cfg.Retrieval.MaxChunkChars)),
		persist,
		retriever.WithDefaultTopK(cfg.Retrieval.TopK),
		retriever.WithLogger(logger.With("component", "retriever")),
	)
	// A durable vector backend may already hold the chunks.
	n, err := store.Count(ctx)
	if err != nil {
		a.close(ctx, logger)
		return nil, fmt.Errorf("count vector store: %w", err)
	}
	if n == 0 {
		n, err = a.retriever.Load(ctx)
		if err != nil {
			a.close(ctx, logger)
			return nil, fmt.Errorf("restore vector store: %w", err)
		}
	}
	logger.Info("vector store ready", "chunks", n, "vector", cfg.Vector.Backend, "persistence", cfg.Persistence.Backend)

	tok, err := newTokenizer(cfg.Retrieval.Tokenizer)
	if err != nil {
		a.close(ctx, logger)
		return nil, err
	}

	opts := []advisor.Option{
		advisor.WithTokenizer(tok),
		advisor.WithLogger(logger.With("component", "advisor")),
		advisor.WithConfig(advisor.Config{
			TopN:               cfg.Scoring.TopN,
			ContextK:           cfg.Retrieval.TopK,
			ContextTokenBudget: cfg.Retrieval.ContextTokenBudget,
			Currency:           cfg.Scoring.Currency,
			Frequency:          cfg.Scoring.Frequency,
		}),
	}
	completer := newCompleter(cfg.Generator)
	if completer != nil {
		templates, err := newTemplates(cfg.Generator)
		if err != nil {
			a.close(ctx, logger)
			return nil, err
		}
		if c, ok := completer.(io.Closer); ok {
			a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		}
		opts = append(opts, advisor.WithGenerator(advisor.NewPromptGenerator(completer, templates, cfg.Scoring.TopN)))
		logger.Info("generator configured", "provider", completer.Name())
	}

	weights := scoring.DefaultWeights()
	if cfg.Scoring.Weights != nil {
		weights = *cfg.Scoring.Weights
	}
	a.advisor = advisor.New(a.retriever, scoring.New(weights), opts...)
	return a, nil
}

func newEmbedder(cfg config.EmbedderConfig) (vector.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		emb, err := openaiembedder.New(openaiembedder.Config{
			APIKey:    cfg.APIKey(),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		return emb, nil
	case "hashing", "":
		return hashing.New(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Provider)
	}
}

func newVectorStore(ctx context.Context, cfg config.VectorConfig, dimension int) (vector.VectorStore, func(context.Context) error, error) {
	switch cfg.Backend {
	case "inmemory", "":
		return inmemory.NewInMemoryVectorStore(), nil, nil
	case "qdrant":
		s, err := qdrant.New(ctx, &qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant vector store: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

func newPersistence(ctx context.Context, cfg config.PersistenceConfig) (persistence.Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case "none":
		return persistence.NewMemory(), nil, nil
	case "file", "":
		return file.New(cfg.Path), nil, nil
	case "redis":
		s := redis.New(&redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		return s, func(context.Context) error { return s.Close() }, nil
	case "postgres":
		s, err := pg.New(&pg.Config{DSN: cfg.Postgres.DSN, TableName: cfg.Postgres.Table})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres persistence: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case "mongo":
		s, err := mongo.New(&mongo.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mongo persistence: %w", err)
		}
		return s, s.Close, nil
	case "minio":
		s, err := minio.New(&minio.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey(),
			SecretKey: cfg.Minio.SecretKey(),
			UseSSL:    cfg.Minio.UseSSL,
			Bucket:    cfg.Minio.Bucket,
			Object:    cfg.Minio.Object,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("object storage persistence: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("object storage persistence: %w", err)
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}

// newTemplates returns the built-in prompts, with the recommendation prompt
// replaced by the configured file when one is set.
func newTemplates(cfg config.GeneratorConfig) (*prompt.Manager, error) {
	templates := advisor.DefaultTemplates()
	if cfg.PromptFile == "" {
		return templates, nil
	}
	if err := templates.RegisterFile(advisor.RecommendationTemplate, cfg.PromptFile); err != nil {
		return nil, fmt.Errorf("generator prompt: %w", err)
	}
	return templates, nil
}

func newTokenizer(name string) (tokenizer.Tokenizer, error) {
	if name == "" || name == "simple" {
		return tokenizer.NewSimpleTokenizer(), nil
	}
	tok, err := tiktoken.New(name)
	if err != nil {
		return nil, fmt.Errorf("context tokenizer: %w", err)
	}
	return tok, nil
}

// newCompleter returns nil when generation is disabled. Providers without a
// key are still built so requests fail with a missing configuration error.
func newCompleter(cfg config.GeneratorConfig) provider.Completer {
	switch cfg.Provider {
	case "gemini":
		return gemini.New(&gemini.Config{
			APIKey:      cfg.APIKey(),
			Model:       cfg.Model,
			MaxTokens:   int32(cfg.MaxTokens),
			Temperature: float32(cfg.Temperature),
		})
	case "openai":
		return openaiprovider.New(&openaiprovider.Config{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   int64(cfg.MaxTokens),
			Temperature: cfg.Temperature,
		})
	case "groq":
		return openaiprovider.NewGroq(cfg.APIKey(), cfg.Model)
	case "claude":
		return claude.New(&claude.Config{
			APIKey:      cfg.APIKey(),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   int64(cfg.MaxTokens),
			Temperature: cfg.Temperature,
		})
	default:
		return nil
	}
}
