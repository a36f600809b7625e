// Package inmemory provides a non-persistent memory driver. It backs unit
// tests and zero-dependency local runs; everything is lost on process
// exit.
package inmemory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/keepsakeco/keepsake/pkg/memory"
)

// Driver implements memory.Driver with plain slices behind a mutex.
type Driver struct {
	mu     sync.RWMutex
	chunks []memory.ChunkRecord
	facts  []memory.FactRecord
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) InsertChunks(_ context.Context, records []memory.ChunkRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range records {
		replaced := false
		for i := range d.chunks {
			if d.chunks[i].ID == rec.ID {
				d.chunks[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			d.chunks = append(d.chunks, rec)
		}
	}
	return nil
}

func (d *Driver) InsertFacts(_ context.Context, records []memory.FactRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.facts = append(d.facts, records...)
	return nil
}

func (d *Driver) SearchChunks(_ context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredChunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []memory.ScoredChunk
	for _, c := range d.chunks {
		if c.UserID != userID || c.Embedding == nil {
			continue
		}
		sim := cosine(query, c.Embedding)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, memory.ScoredChunk{ChunkRecord: c, Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (d *Driver) SearchFacts(_ context.Context, userID string, query []float32, k int, minSimilarity float64) ([]memory.ScoredFact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []memory.ScoredFact
	for _, f := range d.facts {
		if f.UserID != userID || f.Status != memory.FactStatusActive || f.Embedding == nil {
			continue
		}
		sim := cosine(query, f.Embedding)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, memory.ScoredFact{FactRecord: f, Similarity: sim})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (d *Driver) KeywordSearchChunks(_ context.Context, userID string, keywords []string, limit int) ([]memory.ChunkRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []memory.ChunkRecord
	for _, c := range d.chunks {
		if c.UserID != userID {
			continue
		}
		content := strings.ToLower(c.Content)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				hits = append(hits, c)
				break
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Recent != hits[j].Recent {
			return hits[i].Recent
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (d *Driver) RecentFacts(_ context.Context, userID string, limit int) ([]memory.FactRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []memory.FactRecord
	for _, f := range d.facts {
		if f.UserID == userID && f.Status == memory.FactStatusActive {
			hits = append(hits, f)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (d *Driver) DeleteChunks(_ context.Context, userID, conversationID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.chunks[:0]
	for _, c := range d.chunks {
		if c.UserID == userID && c.ConversationID == conversationID {
			continue
		}
		kept = append(kept, c)
	}
	d.chunks = kept
	return nil
}

func (d *Driver) Stats(_ context.Context, userID string) (memory.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s memory.Stats
	for _, c := range d.chunks {
		if c.UserID == userID {
			s.Chunks++
		}
	}
	for _, f := range d.facts {
		if f.UserID == userID && f.Status == memory.FactStatusActive {
			s.Facts++
		}
	}
	return s, nil
}

func (d *Driver) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Ensure Driver implements memory.Driver
var _ memory.Driver = (*Driver)(nil)
