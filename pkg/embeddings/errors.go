package embeddings

import "errors"

// ErrEmbedding indicates an embedding operation failed.
var ErrEmbedding = errors.New("embedding error")
