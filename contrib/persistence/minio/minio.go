package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sweetpotato0/coverwise/rag/persistence"
)

// Config holds S3-compatible object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Object is the key of the compressed record.
	Object string
}

// DefaultConfig returns the settings of a local MinIO server.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: "localhost:9000",
		Bucket:   "coverwise",
		Object:   "vector_store.json.zst",
	}
}

// Store implements persistence.Store as one zstd-compressed JSON object.
type Store struct {
	client *minio.Client
	bucket string
	object string
}

var _ persistence.Store = (*Store)(nil)

// New creates an object-storage record store.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Bucket == "" {
		config.Bucket = defaults.Bucket
	}
	if config.Object == "" {
		config.Object = defaults.Object
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &Store{client: client, bucket: config.Bucket, object: config.Object}, nil
}

// EnsureBucket creates the bucket when it is missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Load reads the record. A missing object is an empty record.
func (s *Store) Load(ctx context.Context) (persistence.Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return persistence.Record{}, nil
		}
		return persistence.Record{}, fmt.Errorf("failed to get record object: %w", err)
	}
	defer obj.Close()

	compressed, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return persistence.Record{}, nil
		}
		return persistence.Record{}, fmt.Errorf("failed to read record object: %w", err)
	}
	data, err := decompress(compressed)
	if err != nil {
		return persistence.Record{}, err
	}
	var rec persistence.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return persistence.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// Save replaces the object with a single PUT.
func (s *Store) Save(ctx context.Context, rec persistence.Record) error {
	if rec.Chunks == nil {
		rec.Chunks = []persistence.ChunkRecord{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	compressed, err := compress(data)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.object, bytes.NewReader(compressed), int64(len(compressed)), minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "zstd",
	})
	if err != nil {
		return fmt.Errorf("failed to put record object: %w", err)
	}
	return nil
}

// Clear removes the record object.
func (s *Store) Clear(ctx context.Context) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.object, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record: %w", err)
	}
	return out, nil
}
