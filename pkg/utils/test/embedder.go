package testutils

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	// Embeddings overrides the derived embedding for specific texts.
	Embeddings map[string][]float32

	// FailOn causes Embed/EmbedBatch to return an error when an input
	// text matches
	FailOn string

	// BatchSizes records the size of every EmbedBatch call.
	BatchSizes []int

	// Purposes records the purpose of every EmbedBatch call.
	Purposes []embeddings.Purpose

	// Dimensions sizes derived embeddings. Defaults to 3.
	Dimensions int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text}, embeddings.PurposeQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string, purpose embeddings.Purpose) ([][]float32, error) {
	m.BatchSizes = append(m.BatchSizes, len(texts))
	m.Purposes = append(m.Purposes, purpose)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.FailOn != "" && text == m.FailOn {
			return nil, fmt.Errorf("mock embedding failure for: %s", text)
		}
		if emb, ok := m.Embeddings[text]; ok {
			out[i] = emb
			continue
		}
		out[i] = m.derive(text)
	}
	return out, nil
}

// derive produces a deterministic pseudo-embedding so distinct texts get
// distinct vectors without any fixture setup.
func (m *MockEmbedder) derive(text string) []float32 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = 3
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}

func (m *MockEmbedder) Close() error {
	return nil
}
