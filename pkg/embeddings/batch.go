package embeddings

import (
	"context"
	"fmt"

	"github.com/keepsakeco/keepsake/pkg/utils"
)

const (
	// MaxBatchSize is the most texts sent to a provider in one call.
	MaxBatchSize = 96

	// MaxTextLength is the per-text character ceiling. Longer texts are
	// truncated before embedding rather than rejected.
	MaxTextLength = 8192
)

// EmbedAll embeds an arbitrary number of texts through e, splitting the
// input into provider-sized batches and truncating oversized texts. The
// result has exactly one embedding per input text, in input order. Any
// batch failure fails the whole call; callers that want partial progress
// issue their own batches.
func EmbedAll(ctx context.Context, e Embedder, texts []string, purpose Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = utils.TruncateRaw(t, MaxTextLength)
	}

	out := make([][]float32, 0, len(prepared))
	for start := 0; start < len(prepared); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(prepared))

		vectors, err := e.EmbedBatch(ctx, prepared[start:end], purpose)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: batch returned %d embeddings for %d texts",
				ErrEmbedding, len(vectors), end-start)
		}

		out = append(out, vectors...)
	}

	return out, nil
}
