// Package ingest turns a raw conversation export into stored, embedded
// memory chunks. It is the bulk-import path: parse the export, linearize
// each conversation tree, chunk at both granularities, embed, insert.
//
// The pipeline degrades instead of failing. A malformed conversation is
// skipped and counted; a failed embedding batch stores its chunks without
// embeddings so a later re-embed pass can pick them up. Every record
// write is independent and complete, so an abandoned run leaves the store
// consistent.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/chunker"
	"github.com/keepsakeco/keepsake/pkg/embeddings"
	"github.com/keepsakeco/keepsake/pkg/export"
	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/utils"
)

const (
	// defaultConcurrency bounds how many conversations embed at once.
	// Kept low to stay inside embedding provider rate limits.
	defaultConcurrency = 2

	// defaultBatchDelay spaces consecutive embedding batches within one
	// conversation, again for rate limits.
	defaultBatchDelay = 250 * time.Millisecond
)

// Config tunes the pipeline. Zero values fall back to defaults.
type Config struct {
	// Concurrency is how many conversations are processed in parallel.
	Concurrency int

	// BatchDelay is the pause between embedding batches of a single
	// conversation.
	BatchDelay time.Duration

	// RawExportDir, when set, retains the verbatim export payload on disk
	// so a re-chunk never needs the source re-uploaded.
	RawExportDir string
}

// Report summarizes one pipeline run.
type Report struct {
	// Conversations is how many conversations produced chunks.
	Conversations int

	// Chunks is how many chunk records were stored.
	Chunks int

	// Degraded is how many stored chunks have no embedding because their
	// batch failed.
	Degraded int

	// Skipped is how many conversations yielded no usable messages.
	Skipped int

	// RawExportPath is where the verbatim payload was retained, empty
	// when retention is off or failed.
	RawExportPath string
}

// Pipeline ingests conversation exports into the memory store.
type Pipeline struct {
	embedder embeddings.Embedder
	store    memory.Driver
	cfg      Config
	logger   *zap.Logger

	done  atomic.Int64
	total atomic.Int64
}

// NewPipeline creates an ingest pipeline.
func NewPipeline(embedder embeddings.Embedder, store memory.Driver, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaultBatchDelay
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Progress returns how many conversations of the current run have been
// processed and the total to process. Safe to poll from another
// goroutine.
func (p *Pipeline) Progress() (done, total int) {
	return int(p.done.Load()), int(p.total.Load())
}

// Run ingests a raw export payload for one user. It blocks until every
// conversation is processed or the context is cancelled.
func (p *Pipeline) Run(ctx context.Context, userID string, data []byte) (Report, error) {
	trees, err := export.ParseExport(data)
	if err != nil {
		return Report{}, fmt.Errorf("parsing export: %w", err)
	}

	var report Report
	if p.cfg.RawExportDir != "" {
		report.RawExportPath = p.retainExport(userID, data)
	}

	p.total.Store(int64(len(trees)))
	p.done.Store(0)

	if len(trees) == 0 {
		return report, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.cfg.Concurrency)
	)

	for _, tree := range trees {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(tree export.ConversationTree) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			stored, degraded, err := p.ingestConversation(ctx, userID, tree)
			p.done.Add(1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Skipped++
				p.logger.Warn("skipping conversation",
					zap.String("conversation_id", tree.ID),
					zap.Error(err),
				)
			case stored == 0:
				report.Skipped++
			default:
				report.Conversations++
				report.Chunks += stored
				report.Degraded += degraded
			}
		}(tree)
	}

	wg.Wait()

	p.logger.Info("import finished",
		zap.String("user_id", userID),
		zap.Int("conversations", report.Conversations),
		zap.Int("chunks", report.Chunks),
		zap.Int("degraded", report.Degraded),
		zap.Int("skipped", report.Skipped),
	)

	return report, ctx.Err()
}

// Rechunk replaces a conversation's entire chunk set: delete the stored
// chunks, then regenerate them from the given tree. Used after chunker
// parameter changes, fed from the retained raw export.
func (p *Pipeline) Rechunk(ctx context.Context, userID string, tree export.ConversationTree) (int, error) {
	if err := p.store.DeleteChunks(ctx, userID, tree.ID); err != nil {
		return 0, fmt.Errorf("deleting stale chunks: %w", err)
	}

	stored, _, err := p.ingestConversation(ctx, userID, tree)
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// ingestConversation linearizes, chunks, embeds, and stores one
// conversation. Returns how many chunks were stored and how many of those
// lack an embedding.
func (p *Pipeline) ingestConversation(ctx context.Context, userID string, tree export.ConversationTree) (stored, degraded int, err error) {
	messages := export.Linearize(&tree)
	if len(messages) == 0 {
		return 0, 0, nil
	}

	title := tree.Title
	if title == "" {
		title = "Untitled"
	}

	chunks := chunker.ChunkConversation(messages, title)
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors := p.embedTexts(ctx, texts)

	now := time.Now().UTC()
	records := make([]memory.ChunkRecord, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			degraded++
		}
		records[i] = memory.ChunkRecord{
			ID:             uuid.New().String(),
			UserID:         userID,
			ConversationID: tree.ID,
			Title:          c.Title,
			Layer:          c.Layer,
			Part:           c.Part,
			Content:        c.Content,
			MessageCount:   c.MessageCount,
			Embedding:      vectors[i],
			CreatedAt:      now,
		}
	}

	if err := p.store.InsertChunks(ctx, records); err != nil {
		return 0, 0, fmt.Errorf("storing chunks: %w", err)
	}

	return len(records), degraded, nil
}

// embedTexts embeds the texts batch by batch with an inter-batch delay.
// A failed batch leaves nil embeddings for its texts instead of failing
// the conversation.
func (p *Pipeline) embedTexts(ctx context.Context, texts []string) [][]float32 {
	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = utils.TruncateRaw(t, embeddings.MaxTextLength)
	}

	out := make([][]float32, len(prepared))
	for start := 0; start < len(prepared); start += embeddings.MaxBatchSize {
		if start > 0 && !sleepCtx(ctx, p.cfg.BatchDelay) {
			break
		}

		end := min(start+embeddings.MaxBatchSize, len(prepared))

		vectors, err := p.embedder.EmbedBatch(ctx, prepared[start:end], embeddings.PurposeDocument)
		if err != nil || len(vectors) != end-start {
			p.logger.Warn("embedding batch failed, storing chunks without embeddings",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Error(err),
			)
			continue
		}

		copy(out[start:end], vectors)
	}

	return out
}

// retainExport writes the verbatim payload under the raw export
// directory. Retention failures are logged, never fatal.
func (p *Pipeline) retainExport(userID string, data []byte) string {
	dir := filepath.Join(p.cfg.RawExportDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("raw export retention failed", zap.Error(err))
		return ""
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json",
		time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.logger.Warn("raw export retention failed", zap.Error(err))
		return ""
	}

	return path
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
