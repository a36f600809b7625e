// Package memory provides interfaces and implementations for the memory
// store: persisted conversation chunks and learned facts with top-k
// similarity search, scoped per user.
package memory

import (
	"context"
	"time"
)

// ChunkRecord is a conversation chunk plus its embedding, owned by exactly
// one user. Immutable once written except for superseding re-chunk
// operations.
type ChunkRecord struct {
	// ID is a unique identifier for the record.
	ID string

	// UserID scopes the record to its owner. Every read and write is
	// filtered by it.
	UserID string

	// ConversationID ties the chunk back to its source conversation so a
	// re-chunk can replace the whole set.
	ConversationID string

	Title        string
	Layer        string
	Part         int
	Content      string
	MessageCount int

	// Embedding is nil when the embedding pass was degraded. Such
	// records are excluded from vector search but still reachable via
	// keyword search.
	Embedding []float32

	// Recent marks chunks written from live chat rather than bulk
	// import. Keyword search ranks them first.
	Recent bool

	CreatedAt time.Time
}

// FactRecord is one durable learned fact.
type FactRecord struct {
	ID         string
	UserID     string
	Category   string
	Statement  string
	Confidence float64

	// Evidence is the source text the fact was extracted from.
	Evidence string

	// SourceMessageID ties the fact to the chat message it was learned
	// from, when known.
	SourceMessageID string

	Status    string
	Embedding []float32
	CreatedAt time.Time
}

// FactStatusActive is the status facts are written with. Superseded or
// retracted facts keep their rows under a different status.
const FactStatusActive = "active"

// ScoredChunk is a chunk search hit with its similarity score.
type ScoredChunk struct {
	ChunkRecord

	// Similarity is cosine similarity, higher is closer. Keyword search
	// hits carry a synthetic descending score instead.
	Similarity float64
}

// ScoredFact is a fact search hit with its similarity score.
type ScoredFact struct {
	FactRecord

	Similarity float64
}

// Stats summarizes a user's stored memory.
type Stats struct {
	Chunks int
	Facts  int
}

// Driver handles storage and retrieval of memory records. All operations
// are scoped by user; cross-user leakage is a correctness violation.
type Driver interface {
	// InsertChunks stores chunk records. Records with the same ID are
	// overwritten.
	InsertChunks(ctx context.Context, records []ChunkRecord) error

	// InsertFacts stores fact records.
	InsertFacts(ctx context.Context, records []FactRecord) error

	// SearchChunks finds the k chunks most similar to the query vector,
	// dropping results below minSimilarity.
	SearchChunks(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]ScoredChunk, error)

	// SearchFacts finds the k active facts most similar to the query
	// vector, dropping results below minSimilarity.
	SearchFacts(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]ScoredFact, error)

	// KeywordSearchChunks matches chunk text case-insensitively against
	// the keywords, ordered recent-first then newest-first.
	KeywordSearchChunks(ctx context.Context, userID string, keywords []string, limit int) ([]ChunkRecord, error)

	// RecentFacts returns the newest active facts, newest first.
	RecentFacts(ctx context.Context, userID string, limit int) ([]FactRecord, error)

	// DeleteChunks removes every chunk of one conversation, clearing the
	// way for a re-chunk.
	DeleteChunks(ctx context.Context, userID, conversationID string) error

	// Stats reports how much memory the user has.
	Stats(ctx context.Context, userID string) (Stats, error)

	// Close releases any resources held by the driver.
	Close() error
}
