package testutils

import (
	"context"
	"errors"

	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/memory/inmemory"
)

// ErrMockFailure is returned by mock drivers when a failure switch is on.
var ErrMockFailure = errors.New("mock driver failure")

// MockMemoryDriver is a real in-memory driver with failure switches, so
// tests can exercise degraded paths without fixtures.
type MockMemoryDriver struct {
	*inmemory.Driver

	// FailInsert causes InsertChunks and InsertFacts to fail.
	FailInsert bool

	// FailSearchChunks causes SearchChunks to fail.
	FailSearchChunks bool

	// FailSearchFacts causes SearchFacts to fail.
	FailSearchFacts bool

	// FailKeyword causes KeywordSearchChunks to fail.
	FailKeyword bool
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver() *MockMemoryDriver {
	return &MockMemoryDriver{Driver: inmemory.NewDriver()}
}

func (m *MockMemoryDriver) InsertChunks(ctx context.Context, records []memory.ChunkRecord) error {
	if m.FailInsert {
		return ErrMockFailure
	}
	return m.Driver.InsertChunks(ctx, records)
}

func (m *MockMemoryDriver) InsertFacts(ctx context.Context, records []memory.FactRecord) error {
	if m.FailInsert {
		return ErrMockFailure
	}
	return m.Driver.InsertFacts(ctx, records)
}

func (m *MockMemoryDriver) SearchChunks(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredChunk, error) {
	if m.FailSearchChunks {
		return nil, ErrMockFailure
	}
	return m.Driver.SearchChunks(ctx, userID, query, k, minSimilarity)
}

func (m *MockMemoryDriver) SearchFacts(ctx context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredFact, error) {
	if m.FailSearchFacts {
		return nil, ErrMockFailure
	}
	return m.Driver.SearchFacts(ctx, userID, query, k, minSimilarity)
}

func (m *MockMemoryDriver) KeywordSearchChunks(ctx context.Context, userID string, keywords []string, limit int) ([]memory.ChunkRecord, error) {
	if m.FailKeyword {
		return nil, ErrMockFailure
	}
	return m.Driver.KeywordSearchChunks(ctx, userID, keywords, limit)
}

// Ensure MockMemoryDriver implements memory.Driver
var _ memory.Driver = (*MockMemoryDriver)(nil)
