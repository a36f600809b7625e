package mcp

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/retrieval"
	testutils "github.com/keepsakeco/keepsake/pkg/utils/test"
)

var _ = Describe("Memory tools", func() {
	var (
		server   *Server
		embedder *testutils.MockEmbedder
		store    *testutils.MockMemoryDriver
		ctx      context.Context
	)

	const userID = "alice"

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
		store = testutils.NewMockMemoryDriver()

		var err error
		server, err = NewServer(Config{
			Retriever: retrieval.NewEngine(embedder, store, retrieval.Config{}, zap.NewNop()),
			Store:     store,
			Logger:    zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	Describe("memory_search", func() {
		BeforeEach(func() {
			embedder.Embeddings["where do I work"] = []float32{1, 0, 0}
			Expect(store.InsertChunks(ctx, []memory.ChunkRecord{{
				ID:        "c1",
				UserID:    userID,
				Title:     "Career chat",
				Layer:     "fine",
				Content:   "User: I work at Acme",
				Embedding: []float32{1, 0, 0},
				CreatedAt: time.Now().UTC(),
			}})).To(Succeed())
		})

		It("returns matching chunks with the composed context", func() {
			result, output, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
				UserID: userID,
				Query:  "where do I work",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())

			Expect(output.Method).To(Equal(retrieval.MethodVector))
			Expect(output.Chunks).To(HaveLen(1))
			Expect(output.Chunks[0].Content).To(ContainSubstring("Acme"))
			Expect(output.Context).To(ContainSubstring("[Memory 1]"))
		})

		It("does not leak another user's memory", func() {
			result, output, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
				UserID: "someone-else",
				Query:  "where do I work",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Chunks).To(BeEmpty())
			Expect(output.Method).To(Equal(retrieval.MethodNone))
		})

		It("rejects requests without a user id", func() {
			result, _, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
				Query: "where do I work",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})
	})

	Describe("fact_recall", func() {
		It("returns the user's recent facts", func() {
			Expect(store.InsertFacts(ctx, []memory.FactRecord{{
				ID:         "f1",
				UserID:     userID,
				Category:   "preferences",
				Statement:  "Loves pottery",
				Confidence: 0.9,
				Status:     memory.FactStatusActive,
				Embedding:  []float32{1, 0, 0},
				CreatedAt:  time.Now().UTC(),
			}})).To(Succeed())

			result, output, err := server.handleFactRecall(ctx, nil, FactRecallInput{UserID: userID})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Facts).To(HaveLen(1))
			Expect(output.Facts[0].Statement).To(Equal("Loves pottery"))
		})

		It("rejects requests without a user id", func() {
			result, _, err := server.handleFactRecall(ctx, nil, FactRecallInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})
	})
})
