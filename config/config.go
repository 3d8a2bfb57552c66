// Package config loads the service configuration from YAML, applies defaults
// and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sweetpotato0/coverwise/scoring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the full service configuration.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Vector      VectorConfig      `yaml:"vector"`
	Watch       WatchConfig       `yaml:"watch"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// RateLimit is requests per second across all clients; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	EnableMCP *bool   `yaml:"enable_mcp"`
}

// MCPEnabled reports whether the MCP endpoint is served. It defaults to true.
func (s ServerConfig) MCPEnabled() bool {
	return s.EnableMCP == nil || *s.EnableMCP
}

// ScoringConfig configures ranking.
type ScoringConfig struct {
	Weights   *scoring.Weights `yaml:"weights"`
	TopN      int              `yaml:"top_n"`
	Currency  string           `yaml:"currency"`
	Frequency string           `yaml:"frequency"`
}

// RetrievalConfig configures chunking and context retrieval.
type RetrievalConfig struct {
	MaxChunkChars      int `yaml:"max_chunk_chars"`
	TopK               int `yaml:"top_k"`
	ContextTokenBudget int `yaml:"context_token_budget"`
	// Tokenizer is "simple" or a tiktoken model or encoding name.
	Tokenizer string `yaml:"tokenizer"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // hashing | openai
	Dimension int    `yaml:"dimension"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey reads the embedding API key from the configured environment variable.
func (e EmbedderConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// PersistenceConfig selects where the chunk record is stored.
type PersistenceConfig struct {
	Backend  string         `yaml:"backend"` // none | file | redis | postgres | mongo | minio
	Path     string         `yaml:"path"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Minio    MinioConfig    `yaml:"minio"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// MongoConfig holds MongoDB settings.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// MinioConfig holds S3-compatible object storage settings. Credentials come
// from MINIO_ACCESS_KEY and MINIO_SECRET_KEY.
type MinioConfig struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Object   string `yaml:"object"`
	UseSSL   bool   `yaml:"use_ssl"`
}

// AccessKey reads the access key from the environment.
func (m MinioConfig) AccessKey() string {
	return os.Getenv("MINIO_ACCESS_KEY")
}

// SecretKey reads the secret key from the environment.
func (m MinioConfig) SecretKey() string {
	return os.Getenv("MINIO_SECRET_KEY")
}

// VectorConfig selects the similarity index.
type VectorConfig struct {
	Backend string       `yaml:"backend"` // inmemory | qdrant
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// WatchConfig enables ingestion from a policy directory.
type WatchConfig struct {
	Dir      string `yaml:"dir"`
	Pattern  string `yaml:"pattern"`
	VendorID string `yaml:"vendor_id"`
}

// GeneratorConfig selects the generation model.
type GeneratorConfig struct {
	Provider    string  `yaml:"provider"` // none | gemini | openai | claude | groq
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// PromptFile replaces the built-in recommendation prompt template.
	PromptFile string `yaml:"prompt_file"`
}

// APIKey reads the generator API key from the configured environment variable.
func (g GeneratorConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Disable     bool   `yaml:"disable"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	// SampleRatio keeps this fraction of root traces; zero keeps all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

var defaultAPIKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
	"groq":   "GROQ_API_KEY",
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads path, applies defaults and environment fallbacks, and validates.
// An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyDefaults fills every zero field.
func (c *AppConfig) ApplyDefaults() {
	setString(&c.Server.Addr, ":8000")
	setDuration(&c.Server.ReadTimeout, 15*time.Second)
	setDuration(&c.Server.WriteTimeout, 60*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 10*time.Second)
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}

	if c.Scoring.Weights == nil {
		w := scoring.DefaultWeights()
		c.Scoring.Weights = &w
	}
	setInt(&c.Scoring.TopN, 3)
	setString(&c.Scoring.Currency, "BWP")
	setString(&c.Scoring.Frequency, "Monthly")

	setInt(&c.Retrieval.MaxChunkChars, 1000)
	setInt(&c.Retrieval.TopK, 3)
	setString(&c.Retrieval.Tokenizer, "simple")

	setString(&c.Embedder.Provider, "hashing")
	if c.Embedder.Dimension <= 0 {
		if c.Embedder.Provider == "openai" {
			c.Embedder.Dimension = 1536
		} else {
			c.Embedder.Dimension = 256
		}
	}
	setString(&c.Embedder.APIKeyEnv, defaultAPIKeyEnv[c.Embedder.Provider])

	setString(&c.Persistence.Backend, "file")
	setString(&c.Persistence.Path, "data/vector_store.json")
	setString(&c.Persistence.Redis.Addr, "localhost:6379")
	setString(&c.Persistence.Redis.Key, "coverwise:vector_store")
	setString(&c.Persistence.Postgres.Table, "policy_chunks")
	setString(&c.Persistence.Mongo.URI, "mongodb://localhost:27017")
	setString(&c.Persistence.Mongo.Database, "coverwise")
	setString(&c.Persistence.Mongo.Collection, "vector_store")
	setString(&c.Persistence.Minio.Endpoint, "localhost:9000")
	setString(&c.Persistence.Minio.Bucket, "coverwise")
	setString(&c.Persistence.Minio.Object, "vector_store.json.zst")

	setString(&c.Vector.Backend, "inmemory")
	setString(&c.Vector.Qdrant.Host, "localhost")
	setInt(&c.Vector.Qdrant.Port, 6334)
	setString(&c.Vector.Qdrant.Collection, "coverwise_chunks")

	setString(&c.Watch.Pattern, "**/*.{txt,md,html,htm}")

	setString(&c.Generator.Provider, "none")
	setString(&c.Generator.APIKeyEnv, defaultAPIKeyEnv[c.Generator.Provider])
	if c.Generator.MaxTokens <= 0 {
		c.Generator.MaxTokens = 2048
	}

	setString(&c.Telemetry.ServiceName, "coverwise")
	setString(&c.Telemetry.Environment, "development")

	setString(&c.Logging.Format, "json")
	setString(&c.Logging.Level, "info")
}

// applyEnv fills connection settings from the conventional environment
// variables when the file leaves them empty.
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" && c.Persistence.Backend == "redis" {
		c.Persistence.Redis.Addr = v
	}
	setString(&c.Persistence.Postgres.DSN, os.Getenv("POSTGRES_DSN"))
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Persistence.Mongo.URI = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" && c.Persistence.Backend == "minio" {
		c.Persistence.Minio.Endpoint = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" && c.Vector.Backend == "qdrant" {
		c.Vector.Qdrant.Host = v
	}
	setString(&c.Telemetry.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if v := os.Getenv("COVERWISE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("COVERWISE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration.
func (c *AppConfig) Validate() error {
	v := NewValidator()

	v.RequireNonEmpty("server.addr", c.Server.Addr)
	v.ValidateFloatRange("server.rate_limit", c.Server.RateLimit, 0, 1e6)
	v.RequireNonNegative("server.rate_burst", c.Server.RateBurst)

	if w := c.Scoring.Weights; w != nil {
		v.ValidateFloatRange("scoring.weights.budget_fit", w.BudgetFit, 0, 1)
		v.ValidateFloatRange("scoring.weights.coverage_match", w.CoverageMatch, 0, 1)
		v.ValidateFloatRange("scoring.weights.price_competitiveness", w.PriceCompetitiveness, 0, 1)
		v.ValidateFloatRange("scoring.weights.vendor_trust", w.VendorTrust, 0, 1)
		v.ValidateFloatRange("scoring.weights.exclusion_penalty", w.ExclusionPenalty, 0, 1)
	}
	v.RequirePositive("scoring.top_n", c.Scoring.TopN)

	v.RequirePositive("retrieval.max_chunk_chars", c.Retrieval.MaxChunkChars)
	v.RequirePositive("retrieval.top_k", c.Retrieval.TopK)
	v.RequireNonNegative("retrieval.context_token_budget", c.Retrieval.ContextTokenBudget)

	v.ValidateOneOf("embedder.provider", c.Embedder.Provider, "hashing", "openai")
	v.ValidateRange("embedder.dimension", c.Embedder.Dimension, 1, 65535)

	v.ValidateOneOf("persistence.backend", c.Persistence.Backend, "none", "file", "redis", "postgres", "mongo", "minio")
	switch c.Persistence.Backend {
	case "file":
		v.RequireNonEmpty("persistence.path", c.Persistence.Path)
	case "redis":
		v.RequireNonEmpty("persistence.redis.addr", c.Persistence.Redis.Addr)
		v.ValidateDBNumber("persistence.redis.db", c.Persistence.Redis.DB)
	case "postgres":
		v.RequireNonEmpty("persistence.postgres.dsn", c.Persistence.Postgres.DSN)
	case "mongo":
		v.RequireNonEmpty("persistence.mongo.uri", c.Persistence.Mongo.URI)
	case "minio":
		v.RequireNonEmpty("persistence.minio.endpoint", c.Persistence.Minio.Endpoint)
		v.RequireNonEmpty("persistence.minio.bucket", c.Persistence.Minio.Bucket)
	}

	v.ValidateOneOf("vector.backend", c.Vector.Backend, "inmemory", "qdrant")
	if c.Vector.Backend == "qdrant" {
		v.RequireNonEmpty("vector.qdrant.host", c.Vector.Qdrant.Host)
		v.ValidateRange("vector.qdrant.port", c.Vector.Qdrant.Port, 1, 65535)
	}

	v.ValidateOneOf("generator.provider", c.Generator.Provider, "none", "gemini", "openai", "claude", "groq")
	v.ValidateFloatRange("generator.temperature", c.Generator.Temperature, 0, 2)

	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	v.ValidateOneOf("logging.format", c.Logging.Format, "text", "json")

	return v.Error()
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst <= 0 {
		*dst = def
	}
}
