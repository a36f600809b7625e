// Package learning turns chat exchanges into durable facts. It runs after
// every chat turn: gather recent facts as anti-duplication context, ask
// the extractor for candidates, gate by confidence, embed, store.
//
// Learning is best-effort by design. An unavailable LLM or embedder costs
// this turn's facts, never the chat turn itself. The one hard failure is
// an embedding/fact count mismatch, which would silently mis-pair facts
// with vectors if guessed around.
package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
	"github.com/keepsakeco/keepsake/pkg/extract"
	"github.com/keepsakeco/keepsake/pkg/memory"
)

const (
	defaultConfidenceFloor = 0.7
	defaultRecentFacts     = 50
)

// Config tunes the learner. Zero values fall back to defaults.
type Config struct {
	// ConfidenceFloor discards extracted facts below this confidence.
	ConfidenceFloor float64

	// RecentFacts is how many recent facts feed the extraction prompt as
	// anti-duplication context.
	RecentFacts int
}

// Learner extracts and persists facts from chat exchanges.
type Learner struct {
	extractor *extract.Extractor
	embedder  embeddings.Embedder
	store     memory.Driver
	cfg       Config
	logger    *zap.Logger
}

// NewLearner creates a fact learner.
func NewLearner(extractor *extract.Extractor, embedder embeddings.Embedder, store memory.Driver, cfg Config, logger *zap.Logger) *Learner {
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = defaultConfidenceFloor
	}
	if cfg.RecentFacts <= 0 {
		cfg.RecentFacts = defaultRecentFacts
	}

	return &Learner{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Learn processes one (user message, assistant reply) exchange and
// returns how many facts were stored. Extraction and embedding failures
// degrade to zero facts with a nil error; only invariant violations and
// store write failures surface as errors.
func (l *Learner) Learn(ctx context.Context, userID, userMessage, assistantResponse, sourceMessageID string) (int, error) {
	existingContext := l.recentFactsContext(ctx, userID)

	candidates, err := l.extractor.ExtractFromExchange(ctx, userMessage, assistantResponse, existingContext)
	if err != nil {
		l.logger.Warn("fact extraction failed, learning nothing this turn",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, nil
	}

	facts := make([]extract.ExtractedFact, 0, len(candidates))
	for _, f := range candidates {
		if f.Confidence >= l.cfg.ConfidenceFloor {
			facts = append(facts, f)
		}
	}
	if len(facts) == 0 {
		return 0, nil
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = fmt.Sprintf("%s: %s", f.Category, f.Statement)
	}

	vectors, err := embeddings.EmbedAll(ctx, l.embedder, texts, embeddings.PurposeDocument)
	if err != nil {
		l.logger.Warn("fact embedding failed, learning nothing this turn",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, nil
	}

	// A count mismatch means any pairing we pick could attach the wrong
	// vector to a fact. Refuse to guess.
	if len(vectors) != len(facts) {
		l.logger.Error("embedding count mismatch, refusing to store facts",
			zap.String("user_id", userID),
			zap.Int("facts", len(facts)),
			zap.Int("embeddings", len(vectors)),
		)
		return 0, fmt.Errorf("embedding count mismatch: got %d embeddings for %d facts", len(vectors), len(facts))
	}

	now := time.Now().UTC()
	records := make([]memory.FactRecord, 0, len(facts))
	for i, f := range facts {
		if vectors[i] == nil {
			continue
		}
		records = append(records, memory.FactRecord{
			ID:              uuid.New().String(),
			UserID:          userID,
			Category:        string(f.Category),
			Statement:       f.Statement,
			Confidence:      f.Confidence,
			Evidence:        f.Evidence,
			SourceMessageID: sourceMessageID,
			Status:          memory.FactStatusActive,
			Embedding:       vectors[i],
			CreatedAt:       now,
		})
	}
	if len(records) == 0 {
		l.logger.Warn("no valid embeddings to store", zap.String("user_id", userID))
		return 0, nil
	}

	if err := l.store.InsertFacts(ctx, records); err != nil {
		return 0, fmt.Errorf("storing facts: %w", err)
	}

	l.logger.Info("learned new facts",
		zap.String("user_id", userID),
		zap.Int("count", len(records)),
	)

	return len(records), nil
}

// recentFactsContext renders the user's newest facts as a bullet list for
// the extraction prompt. Failures just mean less context.
func (l *Learner) recentFactsContext(ctx context.Context, userID string) string {
	facts, err := l.store.RecentFacts(ctx, userID, l.cfg.RecentFacts)
	if err != nil {
		l.logger.Warn("loading recent facts failed, extracting without context",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return ""
	}
	if len(facts) == 0 {
		return ""
	}

	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = fmt.Sprintf("- [%s] %s", f.Category, f.Statement)
	}
	return strings.Join(lines, "\n")
}
