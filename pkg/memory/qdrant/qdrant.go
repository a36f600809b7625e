// Package qdrant provides a Qdrant-backed memory driver. Chunks and facts
// live in two collections; record fields travel as point payload.
//
// Record IDs must be UUIDs, Qdrant rejects arbitrary string point IDs.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/memory"
)

const (
	chunksCollection = "keepsake_chunks"
	factsCollection  = "keepsake_facts"

	// scrollPageSize bounds client-side scans (keyword search, recent
	// facts). Qdrant has no substring match or payload ordering, so
	// those operations page the user's points and finish locally.
	scrollPageSize = 512
)

// Driver implements memory.Driver against a Qdrant instance.
type Driver struct {
	client     *qdrant.Client
	dimensions uint
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant memory driver.
type Config struct {
	// Host is the Qdrant gRPC host.
	Host string

	// Port is the Qdrant gRPC port, typically 6334.
	Port int

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new Qdrant memory driver, creating both collections
// if they do not exist.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrConnection, err)
	}

	d := &Driver{client: client, dimensions: c.Dimensions, logger: logger}

	for _, name := range []string{chunksCollection, factsCollection} {
		if err := d.ensureCollection(ctx, name); err != nil {
			client.Close()
			return nil, err
		}
	}

	logger.Info("qdrant memory driver initialized",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.Uint("dimensions", c.Dimensions),
	)

	return d, nil
}

func (d *Driver) ensureCollection(ctx context.Context, name string) error {
	exists, err := d.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(d.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (d *Driver) checkDimensions(vec []float32) error {
	if uint(len(vec)) != d.dimensions {
		return fmt.Errorf("%w: got %d, store configured for %d",
			memory.ErrDimensionMismatch, len(vec), d.dimensions)
	}
	return nil
}

func userFilter(userID string, extra ...*qdrant.Condition) *qdrant.Filter {
	must := append([]*qdrant.Condition{qdrant.NewMatch("user_id", userID)}, extra...)
	return &qdrant.Filter{Must: must}
}

// InsertChunks stores chunk records. Chunks without an embedding are
// skipped entirely: Qdrant points require a vector, so degraded chunks
// only exist in stores with a relational side.
func (d *Driver) InsertChunks(ctx context.Context, records []memory.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		if rec.Embedding == nil {
			d.logger.Warn("skipping chunk without embedding, qdrant requires a vector",
				zap.String("chunk_id", rec.ID),
			)
			continue
		}
		if err := d.checkDimensions(rec.Embedding); err != nil {
			return fmt.Errorf("chunk %s: %w", rec.ID, err)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"user_id":         rec.UserID,
				"conversation_id": rec.ConversationID,
				"title":           rec.Title,
				"layer":           rec.Layer,
				"part":            int64(rec.Part),
				"content":         rec.Content,
				"message_count":   int64(rec.MessageCount),
				"recent":          rec.Recent,
				"created_at":      rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			}),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: chunksCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting chunks: %w", err)
	}

	d.logger.Debug("inserted chunks", zap.Int("count", len(points)))

	return nil
}

func (d *Driver) InsertFacts(ctx context.Context, records []memory.FactRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		if rec.Embedding == nil {
			d.logger.Warn("skipping fact without embedding, qdrant requires a vector",
				zap.String("fact_id", rec.ID),
			)
			continue
		}
		if err := d.checkDimensions(rec.Embedding); err != nil {
			return fmt.Errorf("fact %s: %w", rec.ID, err)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"user_id":           rec.UserID,
				"category":          rec.Category,
				"statement":         rec.Statement,
				"confidence":        rec.Confidence,
				"evidence":          rec.Evidence,
				"source_message_id": rec.SourceMessageID,
				"status":            rec.Status,
				"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			}),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: factsCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting facts: %w", err)
	}

	return nil
}

func (d *Driver) SearchChunks(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}
	if err := d.checkDimensions(query); err != nil {
		return nil, err
	}

	hits, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: chunksCollection,
		Query:          qdrant.NewQuery(query...),
		Filter:         userFilter(userID),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(float32(minSimilarity)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}

	results := make([]memory.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		rec := chunkFromPayload(hit.Id, hit.Payload)
		results = append(results, memory.ScoredChunk{
			ChunkRecord: rec,
			Similarity:  float64(hit.Score),
		})
	}

	return results, nil
}

func (d *Driver) SearchFacts(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredFact, error) {
	if k <= 0 {
		k = 10
	}
	if err := d.checkDimensions(query); err != nil {
		return nil, err
	}

	hits, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: factsCollection,
		Query:          qdrant.NewQuery(query...),
		Filter: userFilter(userID,
			qdrant.NewMatch("status", memory.FactStatusActive),
		),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(float32(minSimilarity)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}

	results := make([]memory.ScoredFact, 0, len(hits))
	for _, hit := range hits {
		rec := factFromPayload(hit.Id, hit.Payload)
		results = append(results, memory.ScoredFact{
			FactRecord: rec,
			Similarity: float64(hit.Score),
		})
	}

	return results, nil
}

func (d *Driver) KeywordSearchChunks(ctx context.Context, userID string, keywords []string, limit int) ([]memory.ChunkRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var clean []string
	for _, kw := range keywords {
		if kw != "" {
			clean = append(clean, strings.ToLower(kw))
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: chunksCollection,
		Filter:         userFilter(userID),
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling chunks: %w", err)
	}

	var results []memory.ChunkRecord
	for _, p := range points {
		rec := chunkFromPayload(p.Id, p.Payload)
		content := strings.ToLower(rec.Content)
		for _, kw := range clean {
			if strings.Contains(content, kw) {
				results = append(results, rec)
				break
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Recent != results[j].Recent {
			return results[i].Recent
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (d *Driver) RecentFacts(ctx context.Context, userID string, limit int) ([]memory.FactRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: factsCollection,
		Filter: userFilter(userID,
			qdrant.NewMatch("status", memory.FactStatusActive),
		),
		Limit:       qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling facts: %w", err)
	}

	results := make([]memory.FactRecord, 0, len(points))
	for _, p := range points {
		results = append(results, factFromPayload(p.Id, p.Payload))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (d *Driver) DeleteChunks(ctx context.Context, userID, conversationID string) error {
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: chunksCollection,
		Points: qdrant.NewPointsSelectorFilter(userFilter(userID,
			qdrant.NewMatch("conversation_id", conversationID),
		)),
	})
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

func (d *Driver) Stats(ctx context.Context, userID string) (memory.Stats, error) {
	var s memory.Stats

	chunks, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: chunksCollection,
		Filter:         userFilter(userID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return s, fmt.Errorf("counting chunks: %w", err)
	}
	s.Chunks = int(chunks)

	facts, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: factsCollection,
		Filter: userFilter(userID,
			qdrant.NewMatch("status", memory.FactStatusActive),
		),
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return s, fmt.Errorf("counting facts: %w", err)
	}
	s.Facts = int(facts)

	return s, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.client.Close()
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int {
	if v, ok := payload[key]; ok {
		return int(v.GetIntegerValue())
	}
	return 0
}

func payloadBool(payload map[string]*qdrant.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func payloadFloat(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func payloadTime(payload map[string]*qdrant.Value, key string) time.Time {
	raw := payloadString(payload, key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func chunkFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) memory.ChunkRecord {
	return memory.ChunkRecord{
		ID:             pointIDString(id),
		UserID:         payloadString(payload, "user_id"),
		ConversationID: payloadString(payload, "conversation_id"),
		Title:          payloadString(payload, "title"),
		Layer:          payloadString(payload, "layer"),
		Part:           payloadInt(payload, "part"),
		Content:        payloadString(payload, "content"),
		MessageCount:   payloadInt(payload, "message_count"),
		Recent:         payloadBool(payload, "recent"),
		CreatedAt:      payloadTime(payload, "created_at"),
	}
}

func factFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) memory.FactRecord {
	return memory.FactRecord{
		ID:              pointIDString(id),
		UserID:          payloadString(payload, "user_id"),
		Category:        payloadString(payload, "category"),
		Statement:       payloadString(payload, "statement"),
		Confidence:      payloadFloat(payload, "confidence"),
		Evidence:        payloadString(payload, "evidence"),
		SourceMessageID: payloadString(payload, "source_message_id"),
		Status:          payloadString(payload, "status"),
		CreatedAt:       payloadTime(payload, "created_at"),
	}
}

// Ensure Driver implements memory.Driver
var _ memory.Driver = (*Driver)(nil)
