// Package mongo persists the retrieval record as a single MongoDB document.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweetpotato0/coverwise/rag/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI        string
	Database   string
	Collection string
	// RecordID is the _id of the document holding the record.
	RecordID string
}

// DefaultConfig returns default MongoDB configuration.
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "coverwise",
		Collection: "vector_store",
		RecordID:   "default",
	}
}

type mongoRecord struct {
	ID        string                    `bson:"_id"`
	Chunks    []persistence.ChunkRecord `bson:"chunks"`
	UpdatedAt time.Time                 `bson:"updated_at"`
}

// Store implements persistence.Store using MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	recordID   string
}

var _ persistence.Store = (*Store)(nil)

// New connects to MongoDB.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Database == "" {
		config.Database = defaults.Database
	}
	if config.Collection == "" {
		config.Collection = defaults.Collection
	}
	if config.RecordID == "" {
		config.RecordID = defaults.RecordID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		recordID:   config.RecordID,
	}, nil
}

// Load reads the record document. A missing document is an empty record.
func (s *Store) Load(ctx context.Context) (persistence.Record, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": s.recordID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Record{}, nil
	}
	if err != nil {
		return persistence.Record{}, fmt.Errorf("failed to load record from MongoDB: %w", err)
	}
	return persistence.Record{Chunks: doc.Chunks}, nil
}

// Save replaces the record document, inserting it on first save.
func (s *Store) Save(ctx context.Context, rec persistence.Record) error {
	chunks := rec.Chunks
	if chunks == nil {
		chunks = []persistence.ChunkRecord{}
	}
	doc := mongoRecord{ID: s.recordID, Chunks: chunks, UpdatedAt: time.Now()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": s.recordID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save record to MongoDB: %w", err)
	}
	return nil
}

// Clear deletes the record document.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": s.recordID})
	return err
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
