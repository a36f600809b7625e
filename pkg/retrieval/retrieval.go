// Package retrieval turns a live chat query into ranked memory context:
// vector search over chunks and facts when embeddings are available,
// keyword search as the degraded path, and a composed context text either
// way.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/utils"
)

const (
	// MethodVector marks results from embedding similarity search.
	MethodVector = "vector"
	// MethodKeyword marks results from the keyword fallback.
	MethodKeyword = "keyword"
	// MethodNone marks an empty result. Not an error: a user with no
	// memory yet looks exactly like this.
	MethodNone = "none"
)

const (
	defaultMaxChunks  = 5
	defaultChunkFloor = 0.3
	defaultFactFloor  = 0.35

	// factK is larger than the chunk budget because facts are denser
	// signal per byte.
	factK = 10

	// chunkCharLimit bounds each chunk's contribution to the composed
	// context so one broad chunk cannot eat the whole prompt budget.
	chunkCharLimit = 1500

	// Keyword fallback: words longer than minKeywordLen, at most
	// maxKeywords of them.
	minKeywordLen = 3
	maxKeywords   = 5
)

// Config tunes the retrieval engine. Zero values fall back to defaults.
type Config struct {
	MaxChunks  int
	ChunkFloor float64
	FactFloor  float64
}

// Result is one retrieval outcome: ranked chunks and facts plus the
// pre-joined context text.
type Result struct {
	Chunks  []memory.ScoredChunk
	Facts   []memory.ScoredFact
	Method  string
	Context string
}

// Engine answers retrieval queries against a memory store.
type Engine struct {
	embedder embeddings.Embedder
	store    memory.Driver
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(embedder embeddings.Embedder, store memory.Driver, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = defaultMaxChunks
	}
	if cfg.ChunkFloor == 0 {
		cfg.ChunkFloor = defaultChunkFloor
	}
	if cfg.FactFloor == 0 {
		cfg.FactFloor = defaultFactFloor
	}

	return &Engine{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve runs the vector path, degrading to keyword search when
// embeddings or the chunk search are unavailable. It never fails because
// the user has no memory; empty results come back with MethodNone.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, maxChunks int) (*Result, error) {
	if maxChunks <= 0 {
		maxChunks = e.cfg.MaxChunks
	}

	result, err := e.vectorSearch(ctx, userID, query, maxChunks)
	if err != nil {
		e.logger.Warn("vector search unavailable, falling back to keyword search",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		result = e.keywordSearch(ctx, userID, query, maxChunks)
	}

	if len(result.Chunks) == 0 && len(result.Facts) == 0 {
		result.Method = MethodNone
	}

	result.Context = composeContext(result.Chunks, result.Facts)

	return result, nil
}

// vectorSearch embeds the query and runs the chunk and fact searches
// concurrently. A chunk-search failure fails the whole vector path; a
// fact-search failure only costs the facts, the chunk results survive.
func (e *Engine) vectorSearch(ctx context.Context, userID, query string, maxChunks int) (*Result, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var (
		wg        sync.WaitGroup
		chunks    []memory.ScoredChunk
		facts     []memory.ScoredFact
		chunksErr error
		factsErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		chunks, chunksErr = e.store.SearchChunks(ctx, userID, queryVec, maxChunks, e.cfg.ChunkFloor)
	}()
	go func() {
		defer wg.Done()
		facts, factsErr = e.store.SearchFacts(ctx, userID, queryVec, factK, e.cfg.FactFloor)
	}()
	wg.Wait()

	if chunksErr != nil {
		return nil, fmt.Errorf("searching chunks: %w", chunksErr)
	}
	if factsErr != nil {
		e.logger.Warn("fact search failed, continuing with chunks only",
			zap.String("user_id", userID),
			zap.Error(factsErr),
		)
		facts = nil
	}

	return &Result{Chunks: chunks, Facts: facts, Method: MethodVector}, nil
}

// keywordSearch is the degraded path: substring matching over stored
// chunk text. Hits get a synthetic descending similarity purely to keep
// their ranking when mixed into scored results.
func (e *Engine) keywordSearch(ctx context.Context, userID, query string, maxChunks int) *Result {
	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return &Result{Method: MethodNone}
	}

	records, err := e.store.KeywordSearchChunks(ctx, userID, keywords, maxChunks)
	if err != nil {
		e.logger.Warn("keyword search failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &Result{Method: MethodNone}
	}

	chunks := make([]memory.ScoredChunk, len(records))
	for i, rec := range records {
		chunks[i] = memory.ScoredChunk{
			ChunkRecord: rec,
			Similarity:  0.9 - float64(i)*0.05,
		}
	}

	return &Result{Chunks: chunks, Method: MethodKeyword}
}

// extractKeywords tokenizes the query into lowercase words longer than
// minKeywordLen, capped at maxKeywords.
func extractKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, `.,!?;:"'()[]`)
		if len(word) <= minKeywordLen {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// composeContext renders facts as a labeled block ahead of the chunk
// content, truncating each chunk so the total stays prompt-sized.
func composeContext(chunks []memory.ScoredChunk, facts []memory.ScoredFact) string {
	var sections []string

	if len(facts) > 0 {
		var b strings.Builder
		b.WriteString("Known facts about the user:")
		for _, f := range facts {
			fmt.Fprintf(&b, "\n- [%s] %s", f.Category, f.Statement)
		}
		sections = append(sections, b.String())
	}

	for i, c := range chunks {
		sections = append(sections,
			fmt.Sprintf("[Memory %d] %s", i+1, utils.Truncate(c.Content, chunkCharLimit)))
	}

	return strings.Join(sections, "\n\n")
}
