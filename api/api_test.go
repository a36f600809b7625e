package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/keepsakeco/keepsake/pkg/eventstream/nop"
	"github.com/keepsakeco/keepsake/pkg/extract"
	"github.com/keepsakeco/keepsake/pkg/ingest"
	"github.com/keepsakeco/keepsake/pkg/learning"
	"github.com/keepsakeco/keepsake/pkg/memory"
	"github.com/keepsakeco/keepsake/pkg/retrieval"
	testutils "github.com/keepsakeco/keepsake/pkg/utils/test"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Suite")
}

var _ = Describe("Server", func() {
	var (
		server   *Server
		embedder *testutils.MockEmbedder
		store    *testutils.MockMemoryDriver
	)

	const userID = "alice"

	llm := func(_ context.Context, _ string) (string, error) {
		return `{"facts": [{"fact": "Works at Acme", "category": "milestones", "confidence": 0.9, "evidence": "x"}]}`, nil
	}

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
		store = testutils.NewMockMemoryDriver()
		logger := zap.NewNop()

		server = NewServer(Config{ListenAddr: ":0"}, Deps{
			Retriever: retrieval.NewEngine(embedder, store, retrieval.Config{}, logger),
			Learner:   learning.NewLearner(extract.NewExtractor(llm), embedder, store, learning.Config{}, logger),
			Pipeline:  ingest.NewPipeline(embedder, store, ingest.Config{BatchDelay: time.Millisecond}, logger),
			Store:     store,
			Events:    nop.NewPublisher(),
			Logger:    logger,
		})
	})

	jsonRequest := func(method, path string, body any) *http.Request {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	decode := func(resp *http.Response, out any) {
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, out)).To(Succeed())
	}

	It("responds to ping", func() {
		resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body string
		decode(resp, &body)
		Expect(body).To(Equal("pong"))
	})

	Describe("POST /v1/retrieve", func() {
		BeforeEach(func() {
			embedder.Embeddings["what do I do for work"] = []float32{1, 0, 0}
			Expect(store.InsertChunks(context.Background(), []memory.ChunkRecord{{
				ID:        "c1",
				UserID:    userID,
				Title:     "Career chat",
				Layer:     "broad",
				Part:      1,
				Content:   "User: I work at Acme as an engineer",
				Embedding: []float32{1, 0, 0},
				CreatedAt: time.Now().UTC(),
			}})).To(Succeed())
		})

		It("returns ranked memory for a query", func() {
			req := jsonRequest(http.MethodPost, "/v1/retrieve", RetrieveRequest{
				UserID: userID,
				Query:  "what do I do for work",
			})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body RetrieveResponse
			decode(resp, &body)
			Expect(body.Method).To(Equal(retrieval.MethodVector))
			Expect(body.Chunks).To(HaveLen(1))
			Expect(body.Chunks[0].Content).To(ContainSubstring("Acme"))
			Expect(body.Context).To(ContainSubstring("[Memory 1]"))
		})

		It("rejects requests without a user id", func() {
			req := jsonRequest(http.MethodPost, "/v1/retrieve", RetrieveRequest{Query: "hello"})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/learn", func() {
		It("learns facts from an exchange", func() {
			req := jsonRequest(http.MethodPost, "/v1/learn", LearnRequest{
				UserID:            userID,
				UserMessage:       "I work at Acme",
				AssistantResponse: "Nice!",
				SourceMessageID:   "msg-1",
			})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body LearnResponse
			decode(resp, &body)
			Expect(body.FactsLearned).To(Equal(1))

			facts, err := store.RecentFacts(context.Background(), userID, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(1))
			Expect(facts[0].Statement).To(Equal("Works at Acme"))
		})

		It("rejects incomplete exchanges", func() {
			req := jsonRequest(http.MethodPost, "/v1/learn", LearnRequest{UserID: userID})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/import", func() {
		exportPayload := func() []byte {
			conv := map[string]any{
				"id":    "conv-1",
				"title": "Pottery",
				"mapping": map[string]any{
					"root": map[string]any{"parent": "", "children": []string{"n0"}},
					"n0": map[string]any{
						"parent": "root", "children": []string{"n1"},
						"message": map[string]any{
							"id":      "n0",
							"author":  map[string]any{"role": "user"},
							"content": map[string]any{"content_type": "text", "parts": []any{"I took up pottery"}},
						},
					},
					"n1": map[string]any{
						"parent": "n0", "children": []string{},
						"message": map[string]any{
							"id":      "n1",
							"author":  map[string]any{"role": "assistant"},
							"content": map[string]any{"content_type": "text", "parts": []any{"That sounds fun!"}},
						},
					},
				},
				"current_node": "n1",
			}
			data, err := json.Marshal([]any{conv})
			Expect(err).NotTo(HaveOccurred())
			return data
		}

		It("runs an import in the background and reports progress", func() {
			req := httptest.NewRequest(http.MethodPost,
				fmt.Sprintf("/v1/import?user_id=%s", userID),
				bytes.NewReader(exportPayload()))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			Eventually(func() ImportProgressResponse {
				resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/import/progress", nil))
				Expect(err).NotTo(HaveOccurred())
				var body ImportProgressResponse
				decode(resp, &body)
				return body
			}).Should(SatisfyAll(
				HaveField("Running", BeFalse()),
				HaveField("Chunks", 2),
				HaveField("Conversations", 1),
			))

			stats, err := store.Stats(context.Background(), userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Chunks).To(Equal(2))
		})

		It("rejects an import without a user id", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/import", bytes.NewReader(exportPayload()))

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an empty payload", func() {
			req := httptest.NewRequest(http.MethodPost,
				fmt.Sprintf("/v1/import?user_id=%s", userID), nil)

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /v1/facts/:userID", func() {
		It("lists a user's recent facts", func() {
			Expect(store.InsertFacts(context.Background(), []memory.FactRecord{{
				ID:         "f1",
				UserID:     userID,
				Category:   "preferences",
				Statement:  "Loves pottery",
				Confidence: 0.9,
				Status:     memory.FactStatusActive,
				Embedding:  []float32{1, 0, 0},
				CreatedAt:  time.Now().UTC(),
			}})).To(Succeed())

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/facts/"+userID, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				UserID string       `json:"user_id"`
				Count  int          `json:"count"`
				Facts  []FactResult `json:"facts"`
			}
			decode(resp, &body)
			Expect(body.UserID).To(Equal(userID))
			Expect(body.Count).To(Equal(1))
			Expect(body.Facts[0].Statement).To(Equal("Loves pottery"))
		})
	})

	Describe("GET /v1/stats/:userID", func() {
		It("reports chunk and fact counts", func() {
			Expect(store.InsertChunks(context.Background(), []memory.ChunkRecord{{
				ID: "c1", UserID: userID, Content: "hello", CreatedAt: time.Now().UTC(),
			}})).To(Succeed())

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/stats/"+userID, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body StatsResponse
			decode(resp, &body)
			Expect(body.Chunks).To(Equal(1))
			Expect(body.Facts).To(BeZero())
		})
	})
})
