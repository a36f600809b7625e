// Package embeddings
package embeddings

import "context"

// Purpose tells the provider which side of a similarity search a batch
// serves. Some models embed queries and documents differently.
type Purpose string

const (
	// PurposeQuery marks texts used as search queries.
	PurposeQuery Purpose = "query"

	// PurposeDocument marks texts stored for later retrieval.
	PurposeDocument Purpose = "document"
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts one query-side text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts into vector embeddings, one
	// per input text, in input order. Callers should size batches with
	// EmbedAll rather than passing arbitrarily large slices.
	EmbedBatch(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
