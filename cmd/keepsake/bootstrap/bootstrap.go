// Package bootstrap wires the memory subsystem from resolved
// configuration. The serve, import, query and learn commands all build
// the same component graph; this package is that single wiring point.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
	embeddingutils "github.com/keepsakeco/keepsake/pkg/embeddings/utils"
	"github.com/keepsakeco/keepsake/pkg/eventstream"
	"github.com/keepsakeco/keepsake/pkg/eventstream/kafka"
	"github.com/keepsakeco/keepsake/pkg/eventstream/nop"
	"github.com/keepsakeco/keepsake/pkg/extract"
	"github.com/keepsakeco/keepsake/pkg/ingest"
	"github.com/keepsakeco/keepsake/pkg/learning"
	"github.com/keepsakeco/keepsake/pkg/memory"
	memoryutils "github.com/keepsakeco/keepsake/pkg/memory/utils"
	"github.com/keepsakeco/keepsake/pkg/retrieval"
)

// Components is the wired memory subsystem.
type Components struct {
	Embedder  embeddings.Embedder
	Store     memory.Driver
	Retriever *retrieval.Engine
	Learner   *learning.Learner
	Pipeline  *ingest.Pipeline
	Events    eventstream.Publisher
}

// Build constructs every component from the resolved viper configuration.
func Build(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*Components, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := memoryutils.NewDriver(ctx, &memoryutils.NewDriverOpts{
		ProviderType: v.GetString("memory.provider"),
		Target:       memoryTarget(v),
		Dimensions:   v.GetUint("memory.dimensions"),
	}, logger)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("creating memory store: %w", err)
	}

	llm, err := extract.NewLLMCaller(extract.LLMCallerConfig{
		Provider: v.GetString("extract.provider"),
		Model:    v.GetString("extract.model"),
		BaseURL:  v.GetString("extract.base_url"),
	}, logger)
	if err != nil {
		embedder.Close()
		store.Close()
		return nil, fmt.Errorf("creating extraction caller: %w", err)
	}

	events, err := newPublisher(v)
	if err != nil {
		embedder.Close()
		store.Close()
		return nil, err
	}

	return &Components{
		Embedder: embedder,
		Store:    store,
		Retriever: retrieval.NewEngine(embedder, store, retrieval.Config{
			MaxChunks:  v.GetInt("retrieval.max_chunks"),
			ChunkFloor: v.GetFloat64("retrieval.chunk_floor"),
			FactFloor:  v.GetFloat64("retrieval.fact_floor"),
		}, logger),
		Learner: learning.NewLearner(extract.NewExtractor(llm), embedder, store, learning.Config{
			ConfidenceFloor: v.GetFloat64("learning.confidence_floor"),
			RecentFacts:     v.GetInt("learning.recent_facts"),
		}, logger),
		Pipeline: ingest.NewPipeline(embedder, store, ingest.Config{
			Concurrency:  v.GetInt("ingest.concurrency"),
			BatchDelay:   time.Duration(v.GetInt("ingest.batch_delay_ms")) * time.Millisecond,
			RawExportDir: v.GetString("storage.raw_export_dir"),
		}, logger),
		Events: events,
	}, nil
}

// Close releases every held resource. Safe on a partially used bundle.
func (c *Components) Close() {
	if c.Events != nil {
		c.Events.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Embedder != nil {
		c.Embedder.Close()
	}
}

// memoryTarget resolves the store target. The sqlitevec provider falls
// back to the configured sqlite path so one setting serves both.
func memoryTarget(v *viper.Viper) string {
	target := v.GetString("memory.target")
	if target == "" && v.GetString("memory.provider") == "sqlitevec" {
		target = v.GetString("storage.sqlite_path")
	}
	return target
}

func newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch provider := v.GetString("events.provider"); provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		brokers := v.GetString("events.brokers")
		if brokers == "" {
			return nil, fmt.Errorf("events.brokers is required for the kafka publisher")
		}
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers: strings.Split(brokers, ","),
			Topic:   v.GetString("events.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", provider)
	}
}
