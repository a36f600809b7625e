package config

const (
	defaultAPIListen = ":8787"

	defaultMemoryProvider   = "sqlitevec"
	defaultMemoryDimensions = 768

	defaultEmbeddingProvider = "ollama"
	defaultEmbeddingTarget   = "http://localhost:11434"
	defaultEmbeddingModel    = "nomic-embed-text"

	defaultExtractProvider = "ollama"
	defaultExtractModel    = "llama3.2"

	defaultIngestConcurrency  = 2
	defaultIngestBatchDelayMs = 250

	defaultRetrievalMaxChunks  = 5
	defaultRetrievalChunkFloor = 0.3
	defaultRetrievalFactFloor  = 0.35

	defaultLearningConfidenceFloor = 0.7
	defaultLearningRecentFacts     = 50

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "keepsake.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Memory: MemoryConfig{
			Provider:   defaultMemoryProvider,
			Dimensions: defaultMemoryDimensions,
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
			Target:   defaultEmbeddingTarget,
			Model:    defaultEmbeddingModel,
		},
		Extract: ExtractConfig{
			Provider: defaultExtractProvider,
			Model:    defaultExtractModel,
		},
		Ingest: IngestConfig{
			Concurrency:  defaultIngestConcurrency,
			BatchDelayMs: defaultIngestBatchDelayMs,
		},
		Retrieval: RetrievalConfig{
			MaxChunks:  defaultRetrievalMaxChunks,
			ChunkFloor: defaultRetrievalChunkFloor,
			FactFloor:  defaultRetrievalFactFloor,
		},
		Learning: LearningConfig{
			ConfidenceFloor: defaultLearningConfidenceFloor,
			RecentFacts:     defaultLearningRecentFacts,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
