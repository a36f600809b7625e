package learning_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/embeddings"
	"github.com/keepsakeco/keepsake/pkg/extract"
	"github.com/keepsakeco/keepsake/pkg/learning"
	"github.com/keepsakeco/keepsake/pkg/memory"
	testutils "github.com/keepsakeco/keepsake/pkg/utils/test"
)

func TestLearning(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Learning Suite")
}

// shortEmbedder returns one vector too few without erroring, to exercise
// the fact/embedding alignment guard.
type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (shortEmbedder) EmbedBatch(_ context.Context, texts []string, _ embeddings.Purpose) ([][]float32, error) {
	out := make([][]float32, 0, len(texts)-1)
	for range texts[1:] {
		out = append(out, []float32{1, 0, 0})
	}
	return out, nil
}

func (shortEmbedder) Close() error { return nil }

var _ = Describe("Learner", func() {
	var (
		embedder *testutils.MockEmbedder
		store    *testutils.MockMemoryDriver
		ctx      context.Context
	)

	const userID = "alice"

	newLearner := func(llm extract.LLMCallFunc, cfg learning.Config) *learning.Learner {
		return learning.NewLearner(extract.NewExtractor(llm), embedder, store, cfg, zap.NewNop())
	}

	respondWith := func(response string) extract.LLMCallFunc {
		return func(_ context.Context, _ string) (string, error) {
			return response, nil
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		store = testutils.NewMockMemoryDriver()
	})

	It("stores facts above the confidence floor and drops the rest", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Works at Acme", "category": "milestones", "confidence": 0.9, "evidence": "I work at Acme"},
			{"fact": "Might like jazz", "category": "preferences", "confidence": 0.4, "evidence": "hmm"}
		]}`), learning.Config{})

		count, err := learner.Learn(ctx, userID, "I work at Acme", "Nice!", "msg-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))

		facts, err := store.RecentFacts(ctx, userID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Statement).To(Equal("Works at Acme"))
		Expect(facts[0].Category).To(Equal("milestones"))
		Expect(facts[0].Status).To(Equal(memory.FactStatusActive))
		Expect(facts[0].SourceMessageID).To(Equal("msg-1"))
		Expect(facts[0].ID).NotTo(BeEmpty())
	})

	It("embeds facts as category-prefixed statements", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Has a cat", "category": "relationships", "confidence": 0.8, "evidence": "my cat"}
		]}`), learning.Config{})

		embedder.Embeddings["relationships: Has a cat"] = []float32{0.5, 0.5, 0}

		count, err := learner.Learn(ctx, userID, "my cat knocked over a plant", "Cats!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))

		hits, err := store.SearchFacts(ctx, userID, []float32{0.5, 0.5, 0}, 10, 0.99)
		Expect(err).NotTo(HaveOccurred())
		Expect(hits).To(HaveLen(1))
		Expect(embedder.Purposes).To(ConsistOf(embeddings.PurposeDocument))
	})

	It("feeds recent facts back as anti-duplication context", func() {
		var lastPrompt string
		llm := func(_ context.Context, prompt string) (string, error) {
			lastPrompt = prompt
			return `{"facts": [{"fact": "Works at Acme", "category": "milestones", "confidence": 0.9, "evidence": "x"}]}`, nil
		}
		learner := newLearner(llm, learning.Config{})

		_, err := learner.Learn(ctx, userID, "I work at Acme", "Nice!", "")
		Expect(err).NotTo(HaveOccurred())

		_, err = learner.Learn(ctx, userID, "Acme again", "Yes!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPrompt).To(ContainSubstring("EXISTING CONTEXT"))
		Expect(lastPrompt).To(ContainSubstring("- [milestones] Works at Acme"))
	})

	It("honors a custom confidence floor", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Leaning toward Lisbon", "category": "decisions", "confidence": 0.6, "evidence": "thinking about it"}
		]}`), learning.Config{ConfidenceFloor: 0.5})

		count, err := learner.Learn(ctx, userID, "thinking about moving", "Where to?", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("learns nothing when extraction fails", func() {
		llm := func(_ context.Context, _ string) (string, error) {
			return "", errors.New("llm down")
		}
		learner := newLearner(llm, learning.Config{})

		count, err := learner.Learn(ctx, userID, "hello", "hi", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))
	})

	It("learns nothing when embedding fails", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Runs marathons", "category": "preferences", "confidence": 0.9, "evidence": "I run marathons"}
		]}`), learning.Config{})

		embedder.FailOn = "preferences: Runs marathons"

		count, err := learner.Learn(ctx, userID, "I run marathons", "Impressive!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))

		stats, err := store.Stats(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Facts).To(Equal(0))
	})

	It("stores nothing when the embedder returns too few vectors", func() {
		learner := learning.NewLearner(extract.NewExtractor(respondWith(`{"facts": [
			{"fact": "Works at Acme", "category": "milestones", "confidence": 0.9, "evidence": "x"},
			{"fact": "Has a cat", "category": "relationships", "confidence": 0.8, "evidence": "my cat"}
		]}`)), shortEmbedder{}, store, learning.Config{}, zap.NewNop())

		count, err := learner.Learn(ctx, userID, "I work at Acme and my cat", "Nice!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))

		stats, err := store.Stats(ctx, userID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Facts).To(Equal(0))
	})

	It("learns nothing when no candidate clears the gate", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Maybe likes tea", "category": "preferences", "confidence": 0.3, "evidence": "eh"}
		]}`), learning.Config{})

		count, err := learner.Learn(ctx, userID, "tea?", "sure", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))
	})

	It("surfaces store write failures", func() {
		learner := newLearner(respondWith(`{"facts": [
			{"fact": "Works at Acme", "category": "milestones", "confidence": 0.9, "evidence": "x"}
		]}`), learning.Config{})

		store.FailInsert = true

		_, err := learner.Learn(ctx, userID, "I work at Acme", "Nice!", "")
		Expect(err).To(HaveOccurred())
	})
})
