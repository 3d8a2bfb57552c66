package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	errorskg "github.com/sweetpotato0/coverwise/errors"
	"github.com/sweetpotato0/coverwise/vector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	payloadID       = "chunk_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
	scrollPageSize  = 256
)

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	Collection string
	// Dimension sizes the collection when it has to be created.
	Dimension int
}

// DefaultConfig returns the settings of a local Qdrant instance.
func DefaultConfig() *Config {
	return &Config{
		Host:       "localhost",
		Port:       6334,
		Collection: "coverwise_chunks",
	}
}

// Store implements vector.VectorStore on a Qdrant collection. Points are
// numbered by insertion ordinal so scrolling returns insertion order.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int

	mu    sync.Mutex
	count uint64
}

var _ vector.VectorStore = (*Store)(nil)

// New connects to Qdrant and creates the collection with dot-product distance
// when it does not exist.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.Collection == "" {
		config.Collection = defaults.Collection
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant collection dimension must be positive: %w", errorskg.ErrInvalidInput)
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  config.Collection,
		dimension:   config.Dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	n, err := s.exactCount(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.count = n
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(s.dimension), Distance: pb.Distance_Dot},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) exactCount(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

// AddEmbeddings upserts the batch in one waited request numbered from the
// current count.
func (s *Store) AddEmbeddings(ctx context.Context, embeddings []*vector.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]*pb.PointStruct, len(embeddings))
	for i, emb := range embeddings {
		if emb == nil || len(emb.Vector) == 0 {
			return fmt.Errorf("embedding %d is empty: %w", i, errorskg.ErrInvalidInput)
		}
		if len(emb.Vector) != s.dimension {
			return fmt.Errorf("embedding %d has %d dimensions, collection holds %d: %w", i, len(emb.Vector), s.dimension, errorskg.ErrDimensionMismatch)
		}
		point, err := toPoint(s.count+uint64(i), emb)
		if err != nil {
			return err
		}
		points[i] = point
	}

	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	s.count += uint64(len(points))
	return nil
}

// Search asks Qdrant for the nearest points. Equal scores keep insertion order.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]vector.Match, error) {
	if s.Dimension() == 0 {
		return []vector.Match{}, nil
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query has %d dimensions, collection holds %d: %w", len(queryVector), s.dimension, errorskg.ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = 10
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := resp.GetResult()
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].GetScore() != hits[j].GetScore() {
			return hits[i].GetScore() > hits[j].GetScore()
		}
		return hits[i].GetId().GetNum() < hits[j].GetId().GetNum()
	})
	matches := make([]vector.Match, 0, len(hits))
	for _, hit := range hits {
		emb, err := fromPayload(hit.GetPayload(), hit.GetVectors().GetVector().GetData())
		if err != nil {
			return nil, err
		}
		matches = append(matches, vector.Match{Embedding: emb, Score: hit.GetScore()})
	}
	return matches, nil
}

// Embeddings scrolls the whole collection in ordinal order.
func (s *Store) Embeddings(ctx context.Context) ([]*vector.Embedding, error) {
	var (
		out    []*vector.Embedding
		offset *pb.PointId
		limit  = uint32(scrollPageSize)
	)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, pt := range resp.GetResult() {
			emb, err := fromPayload(pt.GetPayload(), pt.GetVectors().GetVector().GetData())
			if err != nil {
				return nil, err
			}
			out = append(out, emb)
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	if out == nil {
		out = []*vector.Embedding{}
	}
	return out, nil
}

// Count returns the number of points added through this store.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count), nil
}

// Dimension returns the collection size once it holds points, 0 before.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0
	}
	return s.dimension
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func toPoint(ordinal uint64, emb *vector.Embedding) (*pb.PointStruct, error) {
	meta := "{}"
	if len(emb.Metadata) > 0 {
		data, err := json.Marshal(emb.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata of %s: %w", emb.ID, err)
		}
		meta = string(data)
	}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: ordinal}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: emb.Vector}}},
		Payload: map[string]*pb.Value{
			payloadID:       {Kind: &pb.Value_StringValue{StringValue: emb.ID}},
			payloadText:     {Kind: &pb.Value_StringValue{StringValue: emb.Text}},
			payloadMetadata: {Kind: &pb.Value_StringValue{StringValue: meta}},
		},
	}, nil
}

func fromPayload(payload map[string]*pb.Value, vec []float32) (*vector.Embedding, error) {
	emb := &vector.Embedding{
		ID:     payload[payloadID].GetStringValue(),
		Text:   payload[payloadText].GetStringValue(),
		Vector: append([]float32(nil), vec...),
	}
	if raw := payload[payloadMetadata].GetStringValue(); raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &emb.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", emb.ID, err)
		}
	}
	return emb, nil
}
