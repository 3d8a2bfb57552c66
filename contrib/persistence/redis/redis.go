// Package redis persists the retrieval record as a JSON value under one key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/coverwise/rag/persistence"
)

// Config holds Redis configuration.
type Config struct {
	Addr     string // Redis server address (e.g., "localhost:6379")
	Password string
	DB       int
	Key      string // Key holding the record
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: "localhost:6379",
		Key:  "coverwise:vector_store",
	}
}

// Store implements persistence.Store using Redis.
type Store struct {
	client *redis.Client
	key    string
}

var _ persistence.Store = (*Store)(nil)

// New creates a Redis-backed record store.
func New(config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	key := config.Key
	if key == "" {
		key = DefaultConfig().Key
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &Store{client: client, key: key}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load reads the record. A missing key is an empty record.
func (s *Store) Load(ctx context.Context) (persistence.Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return persistence.Record{}, nil
	}
	if err != nil {
		return persistence.Record{}, fmt.Errorf("failed to get record from Redis: %w", err)
	}
	var rec persistence.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return persistence.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// Save replaces the record in a single SET.
func (s *Store) Save(ctx context.Context, rec persistence.Record) error {
	if rec.Chunks == nil {
		rec.Chunks = []persistence.ChunkRecord{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store record in Redis: %w", err)
	}
	return nil
}

// Clear deletes the record.
func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
